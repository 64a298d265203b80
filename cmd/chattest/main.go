// Package main provides a stress testing tool for the chat WebSocket server.
package main

import (
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/gorilla/websocket"
)

// Metrics tracks the test results
type Metrics struct {
	ConnectionsAttempted int64
	ConnectionsSuccess   int64
	ConnectionsFailed    int64
	MessagesSent         int64
	MessagesReceived     int64
	Errors               int64
}

var metrics Metrics

// session is one logged-in account.
type session struct {
	ID    uint
	Token string
}

func main() {
	host := flag.String("host", "localhost:8375", "API server host")
	userA := flag.String("user-a", "", "First participant (username or email)")
	userB := flag.String("user-b", "", "Second participant (username or email)")
	password := flag.String("password", "Seed!Passw0rd", "Password of both participants")
	clients := flag.Int("clients", 50, "Number of concurrent clients")
	duration := flag.Duration("duration", 30*time.Second, "Test duration")
	flag.Parse()

	if *userA == "" || *userB == "" {
		log.Fatal("❌ -user-a and -user-b are required")
	}

	log.Printf("🚀 Starting Chat Stress Test")
	log.Printf("Target: %s", *host)
	log.Printf("Clients: %d", *clients)
	log.Printf("Duration: %v", *duration)

	a, err := login(*host, *userA, *password)
	if err != nil {
		log.Fatalf("❌ Login failed for %s: %v", *userA, err)
	}
	b, err := login(*host, *userB, *password)
	if err != nil {
		log.Fatalf("❌ Login failed for %s: %v", *userB, err)
	}
	log.Printf("✅ Logged in successfully")

	roomID, err := openRoom(*host, a, b.ID)
	if err != nil {
		log.Fatalf("❌ Opening chat room failed: %v", err)
	}
	log.Printf("✅ Using chat room %d", roomID)

	interrupt := make(chan os.Signal, 1)
	signal.Notify(interrupt, os.Interrupt, syscall.SIGTERM)

	var wg sync.WaitGroup
	stopChan := make(chan struct{})

	// Start clients, alternating sides of the conversation
	for i := 0; i < *clients; i++ {
		me, peer := a, b
		if i%2 == 1 {
			me, peer = b, a
		}
		wg.Add(1)
		go runClient(*host, roomID, me, peer.ID, i, stopChan, &wg)
		time.Sleep(50 * time.Millisecond) // Stagger connections to allow ticket issuance
	}

	// Wait for duration or interrupt
	select {
	case <-time.After(*duration):
		log.Println("⏱️  Test duration reached")
	case <-interrupt:
		log.Println("🛑 Interrupted by user")
	}

	close(stopChan)
	log.Println("Waiting for clients to disconnect...")
	wg.Wait()

	printMetrics()
}

func postJSON(url, token string, payload any, wantStatus int, out any) error {
	body, _ := json.Marshal(payload)
	req, err := http.NewRequest(http.MethodPost, url, bytes.NewBuffer(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	client := &http.Client{Timeout: 5 * time.Second}
	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != wantStatus && !(wantStatus == http.StatusCreated && resp.StatusCode == http.StatusOK) {
		return fmt.Errorf("%s failed with status %d", url, resp.StatusCode)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

func login(host, identifier, password string) (session, error) {
	var result struct {
		User struct {
			ID uint `json:"id"`
		} `json:"user"`
		Access string `json:"access"`
	}
	err := postJSON(fmt.Sprintf("http://%s/api/auth/login", host), "", map[string]string{
		"username_or_email": identifier,
		"password":          password,
	}, http.StatusOK, &result)
	if err != nil {
		return session{}, err
	}
	return session{ID: result.User.ID, Token: result.Access}, nil
}

// openRoom returns the room shared with otherID, creating it when missing.
func openRoom(host string, me session, otherID uint) (uint, error) {
	var result struct {
		ChatRoomID uint `json:"chatroom_id"`
	}
	err := postJSON(fmt.Sprintf("http://%s/api/chatrooms", host), me.Token,
		map[string]uint{"user_id": otherID}, http.StatusCreated, &result)
	return result.ChatRoomID, err
}

func getTicket(host, token string) (string, error) {
	var result struct {
		Ticket string `json:"ticket"`
	}
	err := postJSON(fmt.Sprintf("http://%s/api/ws/ticket", host), token, struct{}{}, http.StatusOK, &result)
	return result.Ticket, err
}

func runClient(host string, roomID uint, me session, peerID uint, id int, stopChan <-chan struct{}, wg *sync.WaitGroup) {
	defer wg.Done()
	atomic.AddInt64(&metrics.ConnectionsAttempted, 1)

	// Get a fresh ticket for this connection
	ticket, err := getTicket(host, me.Token)
	if err != nil {
		atomic.AddInt64(&metrics.ConnectionsFailed, 1)
		atomic.AddInt64(&metrics.Errors, 1)
		return
	}

	// Build WS URL with ticket
	u := url.URL{
		Scheme:   "ws",
		Host:     host,
		Path:     fmt.Sprintf("/ws/chat/%d", roomID),
		RawQuery: "ticket=" + ticket,
	}

	dialer := websocket.DefaultDialer
	c, resp, err := dialer.Dial(u.String(), nil)
	if err != nil {
		atomic.AddInt64(&metrics.ConnectionsFailed, 1)
		atomic.AddInt64(&metrics.Errors, 1)
		return
	}
	if resp != nil && resp.Body != nil {
		defer func() { _ = resp.Body.Close() }()
	}
	defer func() { _ = c.Close() }()

	atomic.AddInt64(&metrics.ConnectionsSuccess, 1)

	// Read loop
	go func() {
		for {
			_, _, err := c.ReadMessage()
			if err != nil {
				return
			}
			atomic.AddInt64(&metrics.MessagesReceived, 1)
		}
	}()

	ticker := time.NewTicker(time.Second * 5)
	defer ticker.Stop()

	for {
		select {
		case <-stopChan:
			_ = c.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return
		case <-ticker.C:
			msg := map[string]interface{}{
				"message":     fmt.Sprintf("Stress test message from client %d", id),
				"receiver_id": peerID,
			}
			msgJSON, _ := json.Marshal(msg)
			err := c.WriteMessage(websocket.TextMessage, msgJSON)
			if err != nil {
				atomic.AddInt64(&metrics.Errors, 1)
				return
			}
			atomic.AddInt64(&metrics.MessagesSent, 1)
		}
	}
}

func printMetrics() {
	log.Println("\n📊 Test Results")
	log.Println("===============")
	log.Printf("Connections Attempted: %d", atomic.LoadInt64(&metrics.ConnectionsAttempted))
	log.Printf("Connections Successful: %d", atomic.LoadInt64(&metrics.ConnectionsSuccess))
	log.Printf("Connections Failed: %d", atomic.LoadInt64(&metrics.ConnectionsFailed))
	log.Printf("Messages Sent: %d", atomic.LoadInt64(&metrics.MessagesSent))
	log.Printf("Messages Received: %d", atomic.LoadInt64(&metrics.MessagesReceived))
	log.Printf("Total Errors: %d", atomic.LoadInt64(&metrics.Errors))
}
