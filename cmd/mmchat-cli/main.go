package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"

	"github.com/ageniuscoder/mmchat/client/internal/api"
	"github.com/ageniuscoder/mmchat/client/internal/auth"
	"github.com/ageniuscoder/mmchat/client/internal/chat"
	"github.com/ageniuscoder/mmchat/client/internal/config"
	"github.com/ageniuscoder/mmchat/client/internal/storage/sqlite"
	"github.com/ageniuscoder/mmchat/client/internal/utils"
)

func main() {
	fmt.Println("Entry point of MmChat terminal client")
	migrate := flag.Bool("migrate", false, "create the local cache schema and exit")
	flag.Parse()

	//config part
	if err := godotenv.Load(); err != nil {
		log.Printf("No .env file loaded: %v", err)
	}
	cfg := config.MustLoad()

	//local cache handling
	cache, err := sqlite.New(cfg.SQLiteDSN)
	if err != nil {
		log.Fatalf("Error opening cache database: %v", err)
	}
	defer cache.Db.Close()

	if err := cache.Migrate(); err != nil {
		log.Fatalf("Migration failed %v", err)
	}
	if *migrate {
		slog.Info("Migration Completed")
		return
	}

	if err := cfg.Validate(); err != nil {
		if verrs, ok := err.(validator.ValidationErrors); ok {
			for _, e := range utils.ValidationErr(verrs) {
				fmt.Printf("  %s: %s\n", e.Field, e.Message)
			}
		}
		log.Fatalf("Invalid config: %v", err)
	}

	localID, err := auth.Identity(cfg.Token)
	if err != nil {
		log.Fatalf("Could not read user id from TOKEN: %v", err)
	}

	backend := api.NewClient(cfg.APIURL, cfg.Token)

	conn := chat.New(cfg.SocketURL,
		chat.WithRedialWait(time.Duration(cfg.RedialSec)*time.Second))
	defer conn.Close()
	if err := conn.SetToken(cfg.Token); err != nil {
		log.Fatalf("Connect failed: %v", err)
	}

	app := &cli{
		cfg:     cfg,
		conn:    conn,
		backend: backend,
		cache:   cache,
		localID: localID,
	}
	app.run(context.Background())
}

type cli struct {
	cfg     config.Config
	conn    *chat.Conn
	backend *api.Client
	cache   *sqlite.Sqlite
	localID string

	session *chat.Session
}

func (a *cli) run(ctx context.Context) {
	fmt.Printf("Logged in as %s. Commands: /users /chat <id> /history /quit\n", a.localID)

	sc := bufio.NewScanner(os.Stdin)
	for {
		fmt.Print("> ")
		if !sc.Scan() {
			break
		}
		line := strings.TrimSpace(sc.Text())
		switch {
		case line == "":
		case line == "/quit":
			a.closeSession()
			return
		case line == "/users":
			a.listUsers(ctx)
		case strings.HasPrefix(line, "/chat "):
			a.openRoom(ctx, strings.TrimSpace(strings.TrimPrefix(line, "/chat ")))
		case line == "/history":
			a.printHistory()
		case strings.HasPrefix(line, "/"):
			fmt.Println("Unknown command")
		default:
			a.send(ctx, line)
		}
	}
	a.closeSession()
}

func (a *cli) listUsers(ctx context.Context) {
	users, err := a.backend.GetUsers(ctx, 100, 0)
	if err != nil {
		fmt.Printf("Could not fetch users: %v\n", err)
		return
	}
	online := a.conn.Online()
	for _, u := range users {
		if u.ID == a.localID {
			continue
		}
		marker := " "
		if online.IsOnline(u.ID) {
			marker = "*"
		}
		fmt.Printf(" %s %s  %s <%s>\n", marker, u.ID, u.Name, u.Email)
	}
}

func (a *cli) openRoom(ctx context.Context, peerID string) {
	if peerID == "" {
		fmt.Println("Usage: /chat <user id>")
		return
	}
	a.closeSession()

	roomID := chat.RoomID(a.localID, peerID)
	a.session = chat.NewSession(a.conn, roomID, a.localID,
		chat.WithHistory(api.History{Client: a.backend}),
		chat.WithCache(a.cache),
		chat.WithTypingTTL(time.Duration(a.cfg.TypingTTLSec)*time.Second),
		chat.WithOnMessage(func(m chat.Message) {
			if !m.IsMe {
				fmt.Printf("\n[%s] %s\n> ", m.Sender, m.Text)
			}
		}),
		chat.WithOnTyping(func(peers []string) {
			for _, p := range peers {
				if p == peerID {
					fmt.Printf("\n[%s is typing...]\n> ", p)
				}
			}
		}),
	)
	if err := a.session.Start(ctx); err != nil {
		fmt.Printf("Could not join room: %v\n", err)
		a.session = nil
		return
	}

	// Show what the cache already has while history loads.
	if cached, err := a.cache.History(roomID, a.localID, 20); err == nil {
		for _, m := range cached {
			a.printMessage(m)
		}
	}
	fmt.Printf("Room %s open\n", roomID)
}

func (a *cli) send(ctx context.Context, text string) {
	if a.session == nil {
		fmt.Println("Open a room first: /chat <user id>")
		return
	}
	if err := a.session.Send(text); err != nil {
		fmt.Printf("Send failed: %v\n", err)
		return
	}
	// Persist through the history store; the socket emit alone is not
	// durable.
	if _, err := a.backend.AddChat(ctx, api.ChatInput{
		RoomID:   a.session.Room(),
		SenderID: a.localID,
		Text:     text,
	}); err != nil {
		fmt.Printf("Persist failed: %v\n", err)
	}
}

func (a *cli) printHistory() {
	if a.session == nil {
		fmt.Println("Open a room first: /chat <user id>")
		return
	}
	for _, m := range a.session.Messages() {
		a.printMessage(m)
	}
}

func (a *cli) printMessage(m chat.Message) {
	who := m.Sender
	if m.IsMe {
		who = "me"
	}
	fmt.Printf(" %s [%s] %s\n", m.Timestamp.Local().Format("15:04"), who, m.Text)
}

func (a *cli) closeSession() {
	if a.session != nil {
		a.session.Close()
		a.session = nil
	}
}
