package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/charmbracelet/log"
	"github.com/gorilla/websocket"

	"mentor-chat/internal/auth"
	"mentor-chat/internal/chat"
)

const (
	PairCount = 500 // ⚠️ Start small. Each pair is two sockets and one conversation.
	MsgCount  = 20  // Messages per participant
	drainWait = 2 * time.Second
)

var (
	baseURL = envOr("LOADTEST_BASE_URL", "http://localhost:8080")
	secret  = os.Getenv("JWT_SECRET")

	sent      atomic.Int64
	confirmed atomic.Int64
	delivered atomic.Int64
	failed    atomic.Int64
)

func main() {
	if secret == "" {
		log.Fatal("JWT_SECRET is not set")
	}
	log.Info("Starting load test", "pairs", PairCount, "messages", MsgCount, "target", baseURL)
	start := time.Now()
	var wg sync.WaitGroup

	// Pair i is initiator i_init talking to responder i_resp.
	for i := 0; i < PairCount; i++ {
		wg.Add(1)
		go func(pairID int) {
			defer wg.Done()
			runPair(pairID)
		}(i)
	}

	wg.Wait()
	log.Info("Load test complete",
		"elapsed", time.Since(start).Round(time.Millisecond),
		"sent", sent.Load(),
		"confirmed", confirmed.Load(),
		"delivered", delivered.Load(),
		"failed", failed.Load(),
	)
}

func runPair(pairID int) {
	initiator := chat.Participant{Identity: fmt.Sprintf("lt-%d-init", pairID), Role: chat.RoleInitiator}
	responder := chat.Participant{Identity: fmt.Sprintf("lt-%d-resp", pairID), Role: chat.RoleResponder}

	tokenA, err := auth.NewToken(secret, initiator.Identity, string(initiator.Role), time.Hour)
	if err != nil {
		log.Error("mint token", "err", err)
		return
	}
	tokenB, err := auth.NewToken(secret, responder.Identity, string(responder.Role), time.Hour)
	if err != nil {
		log.Error("mint token", "err", err)
		return
	}

	convID := createConversation(tokenA, responder)
	if convID == "" {
		return
	}

	var wsWg sync.WaitGroup
	wsWg.Add(2)
	go spamChat(&wsWg, tokenA, convID, initiator, responder)
	go spamChat(&wsWg, tokenB, convID, responder, initiator)
	wsWg.Wait()
}

func createConversation(token string, receiver chat.Participant) string {
	jsonBody, _ := json.Marshal(map[string]chat.Participant{"receiver": receiver})
	req, _ := http.NewRequest(http.MethodPost, baseURL+"/api/conversations", bytes.NewBuffer(jsonBody))
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Content-Type", "application/json")

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		log.Error("create conversation", "err", err)
		return ""
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		log.Error("create conversation", "status", resp.Status)
		return ""
	}

	var data chat.Conversation
	if err := json.NewDecoder(resp.Body).Decode(&data); err != nil {
		log.Error("decode conversation", "err", err)
		return ""
	}
	return data.ID.String()
}

func spamChat(wg *sync.WaitGroup, token, convID string, self, other chat.Participant) {
	defer wg.Done()

	wsURL := strings.Replace(baseURL, "http", "ws", 1) + "/ws?token=" + token
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		log.Error("websocket connect", "identity", self.Identity, "err", err)
		return
	}
	defer conn.Close()

	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			var env chat.Envelope
			if err := conn.ReadJSON(&env); err != nil {
				return
			}
			switch env.Type {
			case chat.EventMessageSent:
				confirmed.Add(1)
			case chat.EventMessageDelivered:
				delivered.Add(1)
			case chat.EventSendFailed, chat.EventError:
				failed.Add(1)
				log.Warn("server rejected event", "identity", self.Identity, "data", string(env.Data))
			}
		}
	}()

	if err := writeEvent(conn, chat.EventJoin, chat.JoinRequest{Identity: self.Identity}); err != nil {
		log.Error("join", "identity", self.Identity, "err", err)
		return
	}

	for i := 0; i < MsgCount; i++ {
		err := writeEvent(conn, chat.EventSend, map[string]any{
			"sender":         self,
			"receiver":       other,
			"body":           fmt.Sprintf("LoadTest Msg %d from %s", i, self.Identity),
			"conversationId": convID,
		})
		if err != nil {
			log.Error("send", "identity", self.Identity, "err", err)
			break
		}
		sent.Add(1)
		// Small sleep to prevent instant localhost bottleneck (simulate real network)
		time.Sleep(10 * time.Millisecond)
	}

	// Give confirmations time to arrive before hanging up.
	time.Sleep(drainWait)
	conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	<-done
	log.Debug("participant finished", "identity", self.Identity, "messages", MsgCount)
}

func writeEvent(conn *websocket.Conn, eventType string, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	return conn.WriteJSON(chat.Envelope{Type: eventType, Data: data})
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
