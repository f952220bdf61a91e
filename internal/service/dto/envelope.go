package dto

// Envelope — общий формат ответов API: {success, message?, data?, error?}.
type Envelope struct {
	Success   bool   `json:"success"`
	Message   string `json:"message,omitempty"`
	Data      any    `json:"data,omitempty"`
	Count     *int   `json:"count,omitempty"`
	ItemCount *int   `json:"itemCount,omitempty"`
	Error     string `json:"error,omitempty"`
}

// IntPtr возвращает указатель на значение; используется для счётчиков в Envelope.
func IntPtr(v int) *int {
	return &v
}
