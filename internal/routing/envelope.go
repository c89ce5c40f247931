package routing

import (
	"encoding/json"
	"net/http"
)

// Envelope messages shared by every endpoint.
const (
	MessageOK       = "操作成功"
	MessageNotFound = "接口不存在"
	MessageInternal = "服务器内部错误"
)

// Pagination describes the page carried by a list envelope.
type Pagination struct {
	Current  int `json:"current"`
	PageSize int `json:"pageSize"`
	Total    int `json:"total"`
}

// Envelope is the uniform response body. Code mirrors an HTTP status; any
// value other than 200 signals a failure described by Message.
type Envelope struct {
	Code       int         `json:"code"`
	Message    string      `json:"message"`
	Data       any         `json:"data,omitempty"`
	Pagination *Pagination `json:"pagination,omitempty"`
}

// OK wraps data in a success envelope.
func OK(data any) Envelope {
	return Envelope{Code: http.StatusOK, Message: MessageOK, Data: data}
}

// OKMessage wraps data in a success envelope with a custom message.
func OKMessage(message string, data any) Envelope {
	return Envelope{Code: http.StatusOK, Message: message, Data: data}
}

// Paged wraps one page of a list.
func Paged(items any, current, pageSize, total int) Envelope {
	return Envelope{
		Code:       http.StatusOK,
		Message:    MessageOK,
		Data:       items,
		Pagination: &Pagination{Current: current, PageSize: pageSize, Total: total},
	}
}

// Failure builds an error envelope.
func Failure(code int, message string) Envelope {
	return Envelope{Code: code, Message: message}
}

// Succeeded reports whether the envelope carries a success code.
func (e Envelope) Succeeded() bool { return e.Code == http.StatusOK }

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

// WriteEnvelope writes env as JSON using its code as the HTTP status.
func WriteEnvelope(w http.ResponseWriter, env Envelope) {
	status := env.Code
	if status < 100 || status > 599 {
		status = http.StatusOK
	}
	writeJSON(w, status, env)
}
