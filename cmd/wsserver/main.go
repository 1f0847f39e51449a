package main

import (
	"context"
	"errors"
	"log"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/ayushgarg2005/Chat-Application/internal/api"
	"github.com/ayushgarg2005/Chat-Application/internal/chat"
	"github.com/ayushgarg2005/Chat-Application/internal/contacts"
	"github.com/ayushgarg2005/Chat-Application/internal/messaging"
	"github.com/ayushgarg2005/Chat-Application/internal/metrics"
	"github.com/ayushgarg2005/Chat-Application/internal/notify"
	"github.com/ayushgarg2005/Chat-Application/internal/presence"
	"github.com/ayushgarg2005/Chat-Application/internal/protocol"
	"github.com/ayushgarg2005/Chat-Application/internal/ratelimit"
	"github.com/ayushgarg2005/Chat-Application/internal/session"
	"github.com/ayushgarg2005/Chat-Application/internal/store"
	"github.com/ayushgarg2005/Chat-Application/internal/ws"
)

func main() {
	config := ws.DefaultServerConfig()

	if addr := os.Getenv("LISTEN_ADDR"); addr != "" {
		config.ListenAddr = addr
	}
	if v := os.Getenv("WORKER_POOL_SIZE"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			config.WorkerPoolSize = n
		}
	}
	if v := os.Getenv("MAX_CONNECTIONS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			config.MaxConnections = n
		}
	}
	if v := os.Getenv("READ_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			config.ReadTimeout = d
		}
	}
	if v := os.Getenv("WRITE_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			config.WriteTimeout = d
		}
	}

	offlineDebounce := presence.DefaultDebounce
	if v := os.Getenv("OFFLINE_DEBOUNCE"); v != "" {
		if d, err := time.ParseDuration(v); err == nil && d > 0 {
			offlineDebounce = d
		}
	}

	// --- Postgres ---
	dsn := "postgres://localhost:5432/chat?sslmode=disable"
	if v := os.Getenv("DATABASE_URL"); v != "" {
		dsn = v
	}
	db, err := store.Open(dsn)
	if err != nil {
		log.Fatalf("failed to connect to Postgres: %v", err)
	}
	if err := db.Migrate(); err != nil {
		log.Fatalf("failed to run migrations: %v", err)
	}

	// --- Redis ---
	redisAddr := "localhost:6379"
	if v := os.Getenv("REDIS_ADDR"); v != "" {
		redisAddr = v
	}
	serverName, _ := os.Hostname()
	if v := os.Getenv("SERVER_NAME"); v != "" {
		serverName = v
	}
	if serverName == "" {
		serverName = "chat-1"
	}

	sessionStore, err := session.NewStore(redisAddr, serverName)
	if err != nil {
		log.Fatalf("failed to connect to Redis: %v", err)
	}

	limiter := ratelimit.NewLimiter(sessionStore.Client())

	// --- NATS (optional: events are advisory) ---
	natsConfig := messaging.DefaultConfig()
	natsConfig.Name = serverName
	if natsURL := os.Getenv("NATS_URL"); natsURL != "" {
		natsConfig.URL = natsURL
	}
	natsClient, err := messaging.NewClient(natsConfig)
	if err != nil {
		log.Printf("NATS unavailable, domain events disabled: %v", err)
		natsClient = nil
	}

	log.Printf("chat WebSocket server starting")
	log.Printf("  listen_addr:      %s", config.ListenAddr)
	log.Printf("  worker_pool:      %d", config.WorkerPoolSize)
	log.Printf("  max_connections:  %d", config.MaxConnections)
	log.Printf("  read_timeout:     %s", config.ReadTimeout)
	log.Printf("  write_timeout:    %s", config.WriteTimeout)
	log.Printf("  offline_debounce: %s", offlineDebounce)
	log.Printf("  nats_url:         %s", natsConfig.URL)
	log.Printf("  redis_addr:       %s", redisAddr)
	log.Printf("  server_name:      %s", serverName)

	registry := session.NewRegistry()

	// Presence transitions fan out as userStatus frames to everyone except
	// the user who transitioned.
	tracker := presence.NewTracker(offlineDebounce, registry.IsBound, func(userID int64, isOnline bool) {
		data, err := protocol.NewServerMessage(protocol.TypeUserStatus, protocol.UserStatusMsg{
			UserID:   userID,
			IsOnline: isOnline,
		})
		if err != nil {
			return
		}
		registry.BroadcastExcept(userID, data)

		natsClient.PublishEvent(messaging.SubjectPresenceChanged, struct {
			UserID   int64 `json:"userId"`
			IsOnline bool  `json:"isOnline"`
		}{UserID: userID, IsOnline: isOnline})
	})

	fanout := notify.NewFanout(db, registry)
	machine := contacts.NewMachine(db, fanout, registry, natsClient)
	pipeline := chat.NewPipeline(db, registry, natsClient)

	// Declare server early so closures can capture it.
	var server *ws.Server

	// sendError writes an error frame to a single authenticated channel.
	sendError := func(conn *ws.Connection, msg string) {
		data, err := protocol.NewServerMessage(protocol.TypeError, protocol.ErrorMsg{Message: msg})
		if err != nil {
			return
		}
		_ = conn.WriteMessage(data)
	}

	dispatcher := ws.NewMessageDispatcher()

	// -----------------------------------------------------------------------
	// auth — bind a user identity to this channel
	// -----------------------------------------------------------------------
	dispatcher.Register(protocol.TypeAuth, func(conn *ws.Connection, msg interface{}) {
		authMsg, ok := msg.(protocol.AuthMsg)
		if !ok {
			return
		}
		ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()

		if authMsg.UserID <= 0 {
			sendError(conn, "invalid user id")
			server.RemoveConnection(conn)
			return
		}
		userID := authMsg.UserID

		// Last writer wins: a reconnect supersedes the old channel. The old
		// channel is left open but unbound; its eventual close unbinds
		// nothing thanks to the registry's stale-close guard.
		prev := registry.Bind(userID, conn)
		if prev != nil && prev != conn {
			log.Printf("auth: user=%d rebound conn=%s (superseding %s)", userID, conn.ID, prev.ID)
		}

		if err := sessionStore.Create(ctx, userID, conn.ID); err != nil {
			log.Printf("auth: session mirror for user=%d: %v", userID, err)
		}

		tracker.MarkOnline(userID)
		metrics.OnlineUsers.Set(float64(registry.Count()))

		resp, err := protocol.NewServerMessage(protocol.TypeInitialOnlineUsers, protocol.InitialOnlineUsersMsg{
			OnlineUsers: tracker.Online(),
		})
		if err == nil {
			_ = conn.WriteMessage(resp)
		}

		log.Printf("auth: user=%d bound to conn=%s", userID, conn.ID)
	})

	// -----------------------------------------------------------------------
	// message — private message or public broadcast
	// -----------------------------------------------------------------------
	dispatcher.Register(protocol.TypeMessage, func(conn *ws.Connection, msg interface{}) {
		chatMsg, ok := msg.(protocol.ChatMsg)
		if !ok {
			return
		}
		userID := conn.UserID()
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		allowed, _ := limiter.Allow(ctx, strconv.FormatInt(userID, 10), ratelimit.RuleMessage)
		if !allowed {
			sendError(conn, "too many messages, slow down")
			return
		}

		if err := pipeline.Send(ctx, userID, chatMsg.ReceiverID, chatMsg.Content); err != nil {
			switch {
			case errors.Is(err, chat.ErrNotConnected):
				sendError(conn, "you are not connected with this user")
			case errors.Is(err, chat.ErrDeliveryFailed):
				log.Printf("message: user=%d: %v", userID, err)
				sendError(conn, "message could not be delivered")
			default:
				// Validation failures carry a client-facing description.
				sendError(conn, err.Error())
			}
		}
	})

	// -----------------------------------------------------------------------
	// markRead — read receipts for a two-party conversation
	// -----------------------------------------------------------------------
	dispatcher.Register(protocol.TypeMarkRead, func(conn *ws.Connection, msg interface{}) {
		readMsg, ok := msg.(protocol.MarkReadMsg)
		if !ok {
			return
		}
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		if err := pipeline.MarkRead(ctx, conn.UserID(), readMsg.WithUserID); err != nil {
			log.Printf("markRead: user=%d with=%d: %v", conn.UserID(), readMsg.WithUserID, err)
		}
	})

	// -----------------------------------------------------------------------
	// connection_request — open a pending connection
	// -----------------------------------------------------------------------
	dispatcher.Register(protocol.TypeConnectionRequest, func(conn *ws.Connection, msg interface{}) {
		reqMsg, ok := msg.(protocol.ConnectionRequestMsg)
		if !ok {
			return
		}
		userID := conn.UserID()
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		if reqMsg.TargetUserID <= 0 || reqMsg.TargetUserID == userID {
			sendError(conn, "invalid target user")
			return
		}

		allowed, _ := limiter.Allow(ctx, strconv.FormatInt(userID, 10), ratelimit.RuleConnectionRequest)
		if !allowed {
			sendError(conn, "too many connection requests")
			return
		}

		if err := machine.Request(ctx, userID, reqMsg.TargetUserID); err != nil {
			switch {
			case errors.Is(err, store.ErrDuplicateRequest):
				sendError(conn, "connection request already sent")
			default:
				log.Printf("connection_request: user=%d target=%d: %v", userID, reqMsg.TargetUserID, err)
				sendError(conn, "could not send connection request")
			}
			return
		}

		resp, err := protocol.NewServerMessage(protocol.TypeRequestSent, protocol.RequestSentMsg{
			ToUserID: reqMsg.TargetUserID,
		})
		if err == nil {
			_ = conn.WriteMessage(resp)
		}
	})

	// -----------------------------------------------------------------------
	// connection-response — accept or reject a pending request
	// -----------------------------------------------------------------------
	dispatcher.Register(protocol.TypeConnectionResponse, func(conn *ws.Connection, msg interface{}) {
		respMsg, ok := msg.(protocol.ConnectionResponseMsg)
		if !ok {
			return
		}
		userID := conn.UserID()
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		if respMsg.Response != protocol.ResponseAccepted && respMsg.Response != protocol.ResponseRejected {
			sendError(conn, "response must be \"accepted\" or \"rejected\"")
			return
		}

		if err := machine.Respond(ctx, userID, respMsg.FromUserID, respMsg.Response); err != nil {
			switch {
			case errors.Is(err, store.ErrNoPendingRequest):
				sendError(conn, "no pending request from this user")
			default:
				log.Printf("connection-response: user=%d from=%d: %v", userID, respMsg.FromUserID, err)
				sendError(conn, "could not process connection response")
			}
			return
		}

		resp, err := protocol.NewServerMessage(protocol.TypeResponseConfirmed, protocol.ResponseConfirmedMsg{
			ToUserID: respMsg.FromUserID,
			Response: respMsg.Response,
		})
		if err == nil {
			_ = conn.WriteMessage(resp)
		}
	})

	// -----------------------------------------------------------------------
	// typing / stop_typing — ephemeral indicator relay
	// -----------------------------------------------------------------------
	typingHandler := func(kind string) ws.MessageHandler {
		return func(conn *ws.Connection, msg interface{}) {
			typingMsg, ok := msg.(protocol.TypingMsg)
			if !ok {
				return
			}
			pipeline.Typing(kind, conn.UserID(), typingMsg.To)
		}
	}
	dispatcher.Register(protocol.TypeTyping, typingHandler(protocol.TypeTyping))
	dispatcher.Register(protocol.TypeStopTyping, typingHandler(protocol.TypeStopTyping))

	server = ws.NewServer(config, dispatcher.Dispatch)

	// A closed channel only becomes a visible offline transition if the user
	// has not rebound within the debounce window.
	server.SetOnDisconnect(func(conn *ws.Connection) {
		userID := conn.UserID()
		if userID == 0 {
			return
		}
		if !registry.Unbind(userID, conn) {
			// Stale close: the user already rebound on a newer channel.
			return
		}
		metrics.OnlineUsers.Set(float64(registry.Count()))

		ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		if err := sessionStore.Delete(ctx, userID, conn.ID); err != nil {
			log.Printf("disconnect: session mirror delete user=%d: %v", userID, err)
		}

		tracker.ScheduleOffline(userID)
	})

	server.Handle("/metrics", metrics.Handler())
	server.Handle("/api/", api.NewHandler(db, pipeline))

	// Graceful shutdown.
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		sig := <-sigCh
		log.Printf("received signal %v, initiating graceful shutdown...", sig)
		tracker.Stop()
		natsClient.Close()
		if err := server.Shutdown(); err != nil {
			log.Printf("shutdown error: %v", err)
		}
		if err := sessionStore.Close(); err != nil {
			log.Printf("session store close error: %v", err)
		}
		if err := db.Close(); err != nil {
			log.Printf("store close error: %v", err)
		}
		os.Exit(0)
	}()

	if err := server.Start(); err != nil {
		log.Fatalf("server error: %v", err)
	}
}
