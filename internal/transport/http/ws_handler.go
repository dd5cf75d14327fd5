package http

import (
	"context"
	"encoding/json"
	"log"
	"net/http"

	"github.com/MikeyZhang75/AI-Tutor/internal/bank"
	"github.com/MikeyZhang75/AI-Tutor/internal/domain"
	"github.com/MikeyZhang75/AI-Tutor/internal/poll"
	"github.com/MikeyZhang75/AI-Tutor/internal/results"
	"github.com/MikeyZhang75/AI-Tutor/internal/session"
	"github.com/MikeyZhang75/AI-Tutor/internal/storage"
	"github.com/gorilla/websocket"
)

// SessionFactory builds a fresh session per websocket connection.
type SessionFactory func() *session.Session

type WSHandler struct {
	newSession SessionFactory
	aggregator *results.Aggregator
	bank       bank.QuestionBank
	store      storage.Store
	upgrader   websocket.Upgrader
}

func NewWSHandler(factory SessionFactory, aggregator *results.Aggregator, b bank.QuestionBank, store storage.Store) *WSHandler {
	return &WSHandler{
		newSession: factory,
		aggregator: aggregator,
		bank:       b,
		store:      store,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}
}

type inboundMessage struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

type startPayload struct {
	SetID string `json:"setId"`
}

type submitPayload struct {
	Answer  string          `json:"answer"` // rendered image data URL
	Strokes []domain.Stroke `json:"strokes,omitempty"`
}

type resultsPayload struct {
	SetID string `json:"setId"`
}

type resultsResult struct {
	Progress *domain.Progress `json:"progress"`
	Resolved bool             `json:"resolved"`
}

type outboundMessage[T any] struct {
	Type    string `json:"type"`
	Payload T      `json:"payload"`
}

type errorPayload struct {
	Message string `json:"message"`
}

// ServeWS upgrades HTTP requests to websockets and wires them into one
// learner session. State snapshots stream out after every mutation.
func (h *WSHandler) ServeWS(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("ws upgrade failed: %v", err)
		return
	}
	defer conn.Close()

	sess := h.newSession()
	defer sess.StopPolling()

	// One whole-set watch per connection, armed when a results request
	// finds answers still in flight.
	setPoller := poll.NewSetCoordinator(h.store)

	updates, cancel := sess.Subscribe()
	defer cancel()

	send := make(chan outboundMessage[any], 16)
	closeSignals := make(chan struct{})
	writerDone := make(chan struct{})
	updatesDone := make(chan struct{})

	go func() {
		defer close(writerDone)
		for msg := range send {
			if err := conn.WriteJSON(msg); err != nil {
				log.Printf("ws write error: %v", err)
				return
			}
		}
	}()

	go func() {
		defer close(updatesDone)
		for {
			select {
			case update, ok := <-updates:
				if !ok {
					return
				}
				select {
				case send <- outboundMessage[any]{Type: "state", Payload: update}:
				case <-closeSignals:
					return
				}
			case <-closeSignals:
				return
			}
		}
	}()

	for {
		var inbound inboundMessage
		if err := conn.ReadJSON(&inbound); err != nil {
			break
		}
		switch inbound.Type {
		case "start":
			var payload startPayload
			if err := json.Unmarshal(inbound.Payload, &payload); err != nil || payload.SetID == "" {
				send <- outboundMessage[any]{Type: "error", Payload: errorPayload{Message: "invalid start payload"}}
				continue
			}
			if err := sess.StartQuestionSet(r.Context(), payload.SetID); err != nil {
				send <- outboundMessage[any]{Type: "error", Payload: errorPayload{Message: err.Error()}}
			}
		case "submit":
			var payload submitPayload
			if err := json.Unmarshal(inbound.Payload, &payload); err != nil || payload.Answer == "" {
				send <- outboundMessage[any]{Type: "error", Payload: errorPayload{Message: "invalid submit payload"}}
				continue
			}
			if err := sess.SubmitAnswer(r.Context(), payload.Answer, payload.Strokes); err != nil {
				send <- outboundMessage[any]{Type: "error", Payload: errorPayload{Message: err.Error()}}
			}
		case "next":
			if err := sess.Navigate(r.Context(), session.Next); err != nil {
				send <- outboundMessage[any]{Type: "error", Payload: errorPayload{Message: err.Error()}}
			}
		case "previous":
			if err := sess.Navigate(r.Context(), session.Previous); err != nil {
				send <- outboundMessage[any]{Type: "error", Payload: errorPayload{Message: err.Error()}}
			}
		case "exit":
			sess.ExitQuestionSet()
		case "results":
			var payload resultsPayload
			if err := json.Unmarshal(inbound.Payload, &payload); err != nil || payload.SetID == "" {
				send <- outboundMessage[any]{Type: "error", Payload: errorPayload{Message: "invalid results payload"}}
				continue
			}
			questions, err := h.bank.ListQuestions(r.Context(), payload.SetID)
			if err != nil {
				send <- outboundMessage[any]{Type: "error", Payload: errorPayload{Message: err.Error()}}
				continue
			}
			progress, err := h.aggregator.Finalize(r.Context(), payload.SetID, questions)
			if err != nil {
				send <- outboundMessage[any]{Type: "error", Payload: errorPayload{Message: err.Error()}}
				continue
			}
			resolved := results.Eligible(*progress)
			send <- outboundMessage[any]{Type: "results", Payload: resultsResult{
				Progress: progress,
				Resolved: resolved,
			}}
			if !resolved {
				// Keep re-finalizing on the whole-set cadence until every
				// answer reaches a terminal status; the watch stops itself.
				setID := payload.SetID
				setPoller.WatchSet(setID, poll.SetInterval, func(domain.Progress) {
					latest, err := h.aggregator.Finalize(context.Background(), setID, questions)
					if err != nil {
						log.Printf("finalize results for set %s: %v", setID, err)
						return
					}
					select {
					case send <- outboundMessage[any]{Type: "results", Payload: resultsResult{
						Progress: latest,
						Resolved: results.Eligible(*latest),
					}}:
					case <-closeSignals:
					}
				})
			}
		default:
			send <- outboundMessage[any]{Type: "error", Payload: errorPayload{Message: "unsupported message type"}}
		}
	}

	close(closeSignals)
	// Stop waits for any in-flight watch callback, so nothing can touch
	// send after it is closed.
	setPoller.Stop()
	<-updatesDone
	close(send)
	<-writerDone
}
