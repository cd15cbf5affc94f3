package middlewares

import "net/http"

// Middleware envuelve un http.Handler con un comportamiento transversal.
type Middleware func(http.Handler) http.Handler

// Chain compone los middlewares sobre h. El orden de la lista es el orden de
// ejecución: Chain(h, A, B) atiende el request como A(B(h)).
func Chain(h http.Handler, mws ...Middleware) http.Handler {
	wrapped := h
	for i := len(mws) - 1; i >= 0; i-- {
		wrapped = mws[i](wrapped)
	}
	return wrapped
}

// ChainFunc es Chain para un http.HandlerFunc suelto.
func ChainFunc(hf http.HandlerFunc, mws ...Middleware) http.Handler {
	return Chain(hf, mws...)
}
