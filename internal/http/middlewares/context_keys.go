package middlewares

type ctxKey string

const (
	CtxRequestID ctxKey = "requestID"
	CtxEventID   ctxKey = "eventID"
)
