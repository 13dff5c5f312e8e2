package main

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/cbodonnell/partyroom/pkg/gamesession"
	"github.com/cbodonnell/partyroom/pkg/games"
	"github.com/cbodonnell/partyroom/pkg/log"
	"github.com/cbodonnell/partyroom/pkg/queue"
	"github.com/cbodonnell/partyroom/pkg/rooms"
	"github.com/cbodonnell/partyroom/pkg/sessions"
	"github.com/cbodonnell/partyroom/pkg/store"
	"github.com/redis/go-redis/v9"
)

const updatePollInterval = 100 * time.Millisecond

func main() {
	redisAddr := flag.String("redis-addr", "localhost:6379", "Redis address")
	sessionPath := flag.String("session-path", "", "Path to the session database")
	logLevel := flag.String("log-level", "warn", "Log level")
	flag.Parse()

	parsedLogLevel, err := log.ParseLogLevel(*logLevel)
	if err != nil {
		panic(fmt.Sprintf("Failed to parse log level: %v", err))
	}
	log.SetDefaultLogger(log.New(os.Stderr, "", log.DefaultLoggerFlag, parsedLogLevel))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	client := redis.NewClient(&redis.Options{
		Addr:     *redisAddr,
		Password: os.Getenv("REDIS_PASSWORD"),
	})
	if err := client.Ping(ctx).Err(); err != nil {
		fmt.Printf("Connection error: cannot reach redis at %s: %v\n", *redisAddr, err)
		os.Exit(1)
	}

	documentStore := store.NewRedisStore(client)
	defer documentStore.Close(ctx)

	path := *sessionPath
	if path == "" {
		configDir, err := os.UserConfigDir()
		if err != nil {
			fmt.Printf("Failed to locate config dir: %v\n", err)
			os.Exit(1)
		}
		dir := filepath.Join(configDir, "partyroom")
		if err := os.MkdirAll(dir, 0o755); err != nil {
			fmt.Printf("Failed to create config dir: %v\n", err)
			os.Exit(1)
		}
		path = filepath.Join(dir, "session.db")
	}

	sessionStore, err := sessions.NewSQLiteStore(ctx, path)
	if err != nil {
		fmt.Printf("Failed to open session store: %v\n", err)
		os.Exit(1)
	}
	defer sessionStore.Close(ctx)

	session := gamesession.NewGameSession(gamesession.NewGameSessionOptions{
		Store:    documentStore,
		Sessions: sessionStore,
	})
	defer session.Close()

	updateQueue := queue.NewInMemoryQueue(256)
	session.SetUpdateHandler(func(room *rooms.Room) {
		if err := updateQueue.Enqueue(room); err != nil {
			log.Warn("Dropping room update: %v", err)
		}
	})
	session.SetChatHandler(func(chat []*rooms.ChatMessage) {
		if err := updateQueue.Enqueue(chat); err != nil {
			log.Warn("Dropping chat update: %v", err)
		}
	})

	router := gamesession.NewRouter()

	restored, err := session.RestoreSession(ctx)
	if err != nil {
		fmt.Printf("Failed to restore session: %v\n", err)
	}
	if restored {
		room, err := session.GetRoomData(ctx)
		if err == nil && room != nil {
			router.Seed(room.CurrentGame)
			fmt.Printf("Rejoined room %s as %s\n", room.Code, session.CurrentPlayer().Name)
			if room.CurrentGame != "" {
				fmt.Printf("Game in progress: %s\n", room.CurrentGame)
			} else {
				printRoom(room)
			}
		}
	}

	go drainUpdates(ctx, updateQueue, router)

	go repl(ctx, cancel, session)

	stopSignal := make(chan os.Signal, 1)
	signal.Notify(stopSignal, os.Interrupt, syscall.SIGTERM)

	select {
	case <-stopSignal:
		fmt.Println("Received stop signal, exiting.")
	case <-ctx.Done():
	}
}

// drainUpdates consumes buffered room snapshots and prints routing
// transitions, polling the way a render loop would.
func drainUpdates(ctx context.Context, updateQueue queue.Queue, router *gamesession.Router) {
	ticker := time.NewTicker(updatePollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		for _, item := range updateQueue.ReadAllMessages() {
			switch update := item.(type) {
			case *rooms.Room:
				event := router.Route(update)
				switch event.Type {
				case gamesession.RouteGameStarted:
					fmt.Printf("\n>> Game started: %s\n", event.Game)
				case gamesession.RouteGameEnded:
					fmt.Println("\n>> Game ended, back to the lobby")
					printRoom(update)
				case gamesession.RouteRoomChanged:
					if update.CurrentGame == "" {
						printRoom(update)
					}
				}
			case []*rooms.ChatMessage:
				if len(update) > 0 {
					msg := update[len(update)-1]
					fmt.Printf("\n[chat] %s: %s\n", msg.PlayerName, msg.Text)
				}
			}
		}
	}
}

func repl(ctx context.Context, cancel context.CancelFunc, session *gamesession.GameSession) {
	scanner := bufio.NewScanner(os.Stdin)
	fmt.Println("Commands: create <name> | join <code> <name> | start <game> | end | submit <type> <json> | actions <type> | chat <text> | room | leave | exit")

	for {
		fmt.Print("> ")
		if !scanner.Scan() {
			cancel()
			return
		}

		fields := strings.Fields(scanner.Text())
		if len(fields) == 0 {
			continue
		}

		if err := runCommand(ctx, session, fields); err != nil {
			if errors.Is(err, errExit) {
				cancel()
				return
			}
			fmt.Printf("Error: %v\n", err)
		}
	}
}

var errExit = errors.New("exit")

func runCommand(ctx context.Context, session *gamesession.GameSession, fields []string) error {
	switch fields[0] {
	case "create":
		if len(fields) < 2 {
			return fmt.Errorf("usage: create <name>")
		}
		code, err := session.CreateRoom(ctx, strings.Join(fields[1:], " "))
		if err != nil {
			return err
		}
		fmt.Printf("Created room %s\n", code)
		return nil
	case "join":
		if len(fields) < 3 {
			return fmt.Errorf("usage: join <code> <name>")
		}
		code := strings.ToUpper(fields[1])
		if !rooms.ValidRoomCode(code) {
			return fmt.Errorf("room code must be %d letters", rooms.RoomCodeLength)
		}
		if err := session.JoinRoom(ctx, code, strings.Join(fields[2:], " ")); err != nil {
			return err
		}
		fmt.Printf("Joined room %s\n", code)
		return nil
	case "start":
		if len(fields) != 2 {
			return fmt.Errorf("usage: start <game> (one of %s)", strings.Join(games.Kinds(), ", "))
		}
		room, err := session.GetRoomData(ctx)
		if err != nil || room == nil {
			return fmt.Errorf("not in a room")
		}
		if err := games.Validate(fields[1], len(room.Players)); err != nil {
			return err
		}
		game, _ := games.Get(fields[1])
		return session.StartGame(ctx, game.Kind, game.InitialData())
	case "end":
		return session.EndGame(ctx)
	case "submit":
		if len(fields) < 3 {
			return fmt.Errorf("usage: submit <type> <json>")
		}
		var data interface{}
		raw := strings.Join(fields[2:], " ")
		if err := json.Unmarshal([]byte(raw), &data); err != nil {
			data = raw
		}
		return session.SubmitPlayerAction(ctx, fields[1], data)
	case "actions":
		if len(fields) != 2 {
			return fmt.Errorf("usage: actions <type>")
		}
		actions, err := session.GetPlayerActions(ctx, fields[1])
		if err != nil {
			return err
		}
		for _, action := range actions {
			fmt.Printf("  %s: %v\n", action.PlayerName, action.Data)
		}
		fmt.Printf("%d action(s)\n", len(actions))
		return nil
	case "chat":
		if len(fields) < 2 {
			return fmt.Errorf("usage: chat <text>")
		}
		return session.SendChatMessage(ctx, strings.Join(fields[1:], " "))
	case "room":
		room, err := session.GetRoomData(ctx)
		if err != nil {
			return err
		}
		if room == nil {
			fmt.Println("Not in a room")
			return nil
		}
		printRoom(room)
		return nil
	case "leave":
		return session.LeaveRoom(ctx)
	case "exit":
		return errExit
	default:
		return fmt.Errorf("unknown command: %s", fields[0])
	}
}

func printRoom(room *rooms.Room) {
	fmt.Printf("Room %s (%d players)\n", room.Code, len(room.Players))
	for _, player := range room.Players {
		marker := ""
		if player.IsHost {
			marker = " (host)"
		}
		fmt.Printf("  - %s%s\n", player.Name, marker)
	}
}
