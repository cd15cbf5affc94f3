package email

import (
	"context"

	"github.com/onepass-id/onepass/internal/observability/logger"
)

// Queue desacopla el envío SMTP del request path: los handlers encolan y
// siguen; un worker drena. Si la cola está llena el mensaje se descarta con
// log — el flujo de login nunca se bloquea en el SMTP.
type Queue struct {
	sender Sender
	ch     chan Message
	done   chan struct{}
}

func NewQueue(sender Sender, depth int) *Queue {
	if depth <= 0 {
		depth = 128
	}
	return &Queue{
		sender: sender,
		ch:     make(chan Message, depth),
		done:   make(chan struct{}),
	}
}

// Start lanza el worker. Retorna cuando el contexto se cancela y la cola
// terminó de drenar el mensaje en curso.
func (q *Queue) Start(ctx context.Context) {
	go func() {
		defer close(q.done)
		log := logger.Named("email.queue")
		for {
			select {
			case <-ctx.Done():
				return
			case m := <-q.ch:
				if err := q.sender.Send(m.To, m.Subject, m.HTMLBody, m.TextBody); err != nil {
					log.Warn("send_failed", logger.Email(m.To), logger.Err(err))
				}
			}
		}
	}()
}

// Enqueue agrega el mensaje sin bloquear. Best-effort.
func (q *Queue) Enqueue(m Message) {
	select {
	case q.ch <- m:
	default:
		logger.Named("email.queue").Warn("queue_full_drop", logger.Email(m.To))
	}
}

// Wait bloquea hasta que el worker terminó (tras cancelar el contexto).
func (q *Queue) Wait() { <-q.done }
