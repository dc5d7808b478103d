// Command watch follows one game's clock from a terminal. It keeps a local
// countdown between server snapshots the way a browser client would.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/gorilla/websocket"
	"github.com/spf13/cobra"

	"github.com/tecu23/chess-sessions/pkg/chess"
	"github.com/tecu23/chess-sessions/pkg/config"
	"github.com/tecu23/chess-sessions/pkg/messages"
	"github.com/tecu23/chess-sessions/pkg/predictor"
)

type options struct {
	URL        string
	Token      string
	Tick       time.Duration
	Resync     time.Duration
	Backoff    time.Duration
	MaxBackoff time.Duration
}

func main() {
	cobra.CheckErr(newCmd().Execute())
}

func newCmd() *cobra.Command {
	opts := &options{}

	cmd := &cobra.Command{
		Use:   "watch <session-id>",
		Short: "Prints a live countdown of a game's clocks.",
		Args:  cobra.ExactArgs(1),
		PreRunE: func(cmd *cobra.Command, _ []string) error {
			if err := config.ApplyEnv(cmd.Flags()); err != nil {
				return err
			}
			if opts.Token == "" {
				return errors.New("--token is required")
			}
			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			return watch(ctx, opts, args[0], cmd.OutOrStdout())
		},
	}

	fs := cmd.Flags()
	fs.StringVar(&opts.URL, "url", "ws://localhost:8080/ws", "websocket endpoint (env: CHESS_URL)")
	fs.StringVar(&opts.Token, "token", "", "player bearer token (env: CHESS_TOKEN)")
	fs.DurationVar(&opts.Tick, "tick", predictor.DefaultTick, "display refresh period (env: CHESS_TICK)")
	fs.DurationVar(&opts.Resync, "resync", predictor.DefaultResync, "how often to request a fresh snapshot (env: CHESS_RESYNC)")
	fs.DurationVar(&opts.Backoff, "backoff", 500*time.Millisecond, "first reconnect delay (env: CHESS_BACKOFF)")
	fs.DurationVar(&opts.MaxBackoff, "max-backoff", 30*time.Second, "longest reconnect delay (env: CHESS_MAX_BACKOFF)")

	cmd.SilenceErrors = true
	cmd.SilenceUsage = true

	return cmd
}

func watch(ctx context.Context, opts *options, sessionID string, out io.Writer) error {
	return newWatcher(sessionID, out, time.Now).follow(ctx, opts)
}

var errNotConnected = errors.New("not connected")

// wsClient serialises writes; gorilla allows one writer at a time.
// The connection is swapped on every redial.
type wsClient struct {
	mu sync.Mutex
	ws *websocket.Conn
}

func (c *wsClient) attach(ws *websocket.Conn) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.ws = ws
}

// detach closes the current connection politely
func (c *wsClient) detach() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.ws == nil {
		return
	}
	_ = c.ws.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(time.Second))
	_ = c.ws.Close()
	c.ws = nil
}

func (c *wsClient) send(typ string, payload interface{}) error {
	raw, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.ws == nil {
		return errNotConnected
	}
	return c.ws.WriteJSON(messages.InboundMessage{Type: typ, Payload: raw})
}

type watcher struct {
	sessionID string
	out       io.Writer
	now       func() time.Time
	predictor *predictor.Predictor

	mu sync.Mutex
}

func newWatcher(sessionID string, out io.Writer, now func() time.Time) *watcher {
	return &watcher{
		sessionID: sessionID,
		out:       out,
		now:       now,
		predictor: predictor.New(now),
	}
}

// follow streams the session until ctx is done or the game ends. Every
// connection subscribes afresh, so the server answers with a full snapshot
// before incremental events. The predictor keeps counting down between
// connections. Only a failure of the very first dial is returned.
func (w *watcher) follow(ctx context.Context, opts *options) error {
	var wg sync.WaitGroup
	defer wg.Wait()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	client := &wsClient{}

	wg.Add(1)
	go func() {
		defer wg.Done()
		w.predictor.Run(ctx, opts.Tick, opts.Resync, w.printTick, func() {
			_ = client.send(messages.TypeSync, messages.SessionPayload{SessionID: w.sessionID})
		})
	}()

	b := backoff.NewExponentialBackOff()
	if opts.Backoff > 0 {
		b.InitialInterval = opts.Backoff
	}
	if opts.MaxBackoff > 0 {
		b.MaxInterval = opts.MaxBackoff
	}
	b.MaxElapsedTime = 0

	connected := false
	for {
		dialed, over, err := w.stream(ctx, opts, client)
		if over || ctx.Err() != nil {
			return nil
		}
		if !dialed && !connected {
			return err
		}
		if dialed {
			connected = true
			b.Reset()
		}

		wait := b.NextBackOff()
		w.printf("\nconnection lost (%v), retrying in %s\n", err, wait.Round(time.Millisecond))

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil
		case <-timer.C:
		}
	}
}

// stream runs one connection. dialed reports whether the handshake
// succeeded; over is set once GAME_OVER arrives.
func (w *watcher) stream(ctx context.Context, opts *options, client *wsClient) (dialed, over bool, err error) {
	header := http.Header{}
	header.Set("Authorization", "Bearer "+opts.Token)

	ws, _, err := websocket.DefaultDialer.DialContext(ctx, opts.URL, header)
	if err != nil {
		return false, false, fmt.Errorf("dial %s: %w", opts.URL, err)
	}

	client.attach(ws)
	defer client.detach()

	// unblock ReadMessage on shutdown
	stop := context.AfterFunc(ctx, client.detach)
	defer stop()

	if err := client.send(messages.TypeSubscribe, messages.SessionPayload{SessionID: w.sessionID}); err != nil {
		return true, false, err
	}

	for {
		_, data, err := ws.ReadMessage()
		if err != nil {
			return true, false, err
		}
		if w.handle(data) {
			return true, true, nil
		}
	}
}

// handle applies one server message. It reports true once the game is over.
func (w *watcher) handle(data []byte) bool {
	var msg struct {
		Event   string          `json:"event"`
		Payload json.RawMessage `json:"payload"`
	}
	if err := json.Unmarshal(data, &msg); err != nil {
		w.printf("\nbad message: %v\n", err)
		return false
	}

	switch msg.Event {
	case messages.EventClockState:
		var snap messages.ClockStatePayload
		if json.Unmarshal(msg.Payload, &snap) == nil && snap.SessionID == w.sessionID {
			w.predictor.Adopt(snap, w.now())
		}

	case messages.EventMove:
		var move messages.MovePayload
		if json.Unmarshal(msg.Payload, &move) == nil && move.SessionID == w.sessionID {
			w.printf("\n%s played %s\n", move.PlayerID, move.Move)
		}

	case messages.EventGameOver:
		var over messages.GameOverPayload
		if json.Unmarshal(msg.Payload, &over) == nil && over.SessionID == w.sessionID {
			winner := string(over.Winner)
			if winner == "" {
				winner = "nobody"
			}
			w.printf("\ngame over: %s (%s wins)\n", over.Reason, winner)
			return true
		}

	case messages.EventError:
		var e messages.ErrorPayload
		if json.Unmarshal(msg.Payload, &e) == nil {
			w.printf("\nerror %s: %s\n", e.Code, e.Message)
		}
	}

	return false
}

func (w *watcher) printTick(tick chess.ClockTick) {
	marker := func(side chess.Color) string {
		if tick.ActiveColor == side {
			return "*"
		}
		return " "
	}

	w.printf("\r%swhite %8s   %sblack %8s",
		marker(chess.White), chess.FormatClockTime(tick.White),
		marker(chess.Black), chess.FormatClockTime(tick.Black))
}

func (w *watcher) printf(format string, args ...interface{}) {
	w.mu.Lock()
	defer w.mu.Unlock()
	fmt.Fprintf(w.out, format, args...)
}
