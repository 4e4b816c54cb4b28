package main

import (
	"bufio"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/omochice/support-chat/internal/client"
	"github.com/omochice/support-chat/pkg/protocol"
)

const usage = `Commands:
  /join <conversation>                 join a conversation room
  /leave <conversation>                leave a conversation room
  /send <recipient> <text>             send to the recipient's direct conversation
  /edit <conversation> <id> <text>     edit one of your messages
  /recall <conversation> <id>          recall a message
  /read <conversation>                 mark a conversation as read
  /typing <conversation> on|off        send a typing indicator
  /history <conversation>              print the local timeline
  /online                              list online users
  /quit                                disconnect`

func main() {
	serverAddr := flag.String("server", "ws://localhost:8080/ws", "WebSocket URL of the chat server")
	token := flag.String("token", "", "Bearer token issued for the user")
	user := flag.String("user", "", "User id the token was issued for")
	codec := flag.String("codec", "binary", "Frame codec (binary or json)")
	flag.Parse()

	log := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen}).
		With().Timestamp().Logger()

	if *token == "" || *user == "" {
		log.Fatal().Msg("-token and -user are required")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	c := client.New(*serverAddr, client.Options{
		UserID: *user,
		Token:  *token,
		Codec:  protocol.ParseCodec(*codec),
		Logger: log,
	})

	dialCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	err := c.Connect(dialCtx)
	cancel()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to server")
	}
	defer c.Close()

	log.Info().Str("server", *serverAddr).Str("user", *user).Msg("connected")

	go printEvents(c)

	fmt.Println(usage)
	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(os.Stdin)
		for scanner.Scan() {
			lines <- scanner.Text()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case line, ok := <-lines:
			if !ok {
				return
			}
			quit, err := run(ctx, c, strings.TrimSpace(line))
			if err != nil {
				log.Error().Err(err).Msg("command failed")
			}
			if quit {
				return
			}
		}
	}
}

func run(ctx context.Context, c *client.Client, line string) (bool, error) {
	if line == "" {
		return false, nil
	}
	fields := strings.Fields(line)
	arg := func(i int) string {
		if i < len(fields) {
			return fields[i]
		}
		return ""
	}
	rest := func(i int) string {
		if i >= len(fields) {
			return ""
		}
		return strings.Join(fields[i:], " ")
	}

	switch fields[0] {
	case "/quit", "/exit":
		return true, nil
	case "/join":
		return false, c.Join(ctx, arg(1))
	case "/leave":
		return false, c.Leave(ctx, arg(1))
	case "/send":
		msg, err := c.Send(ctx, arg(1), "", rest(2))
		if err == nil {
			fmt.Printf("... sending %s to %s\n", msg.TempID, msg.ConversationID)
		}
		return false, err
	case "/edit":
		return false, c.Edit(ctx, arg(1), arg(2), rest(3))
	case "/recall":
		return false, c.Recall(ctx, arg(1), arg(2))
	case "/read":
		return false, c.MarkRead(ctx, arg(1))
	case "/typing":
		return false, c.Typing(ctx, arg(1), arg(2) != "off")
	case "/history":
		for _, e := range c.Timeline().View(arg(1)) {
			printEntry(e)
		}
		return false, nil
	case "/online":
		return false, c.RequestOnlineUsers(ctx)
	default:
		fmt.Println(usage)
		return false, nil
	}
}

func printEvents(c *client.Client) {
	failures := c.Failures()
	events := c.Events()
	for events != nil || failures != nil {
		select {
		case env, ok := <-events:
			if !ok {
				events = nil
				continue
			}
			printEnvelope(env)
		case res, ok := <-failures:
			if !ok {
				failures = nil
				continue
			}
			fmt.Printf("!!! send %s failed: %v\n", res.TempID, res.Err)
		}
	}
}

func printEnvelope(env protocol.Envelope) {
	switch env.Event {
	case protocol.EventNewMessage:
		var ev protocol.NewMessage
		if err := env.Bind(&ev); err == nil {
			fmt.Printf("[%s] %s: %s (%s)\n", ev.Message.ConversationID, ev.Message.SenderID, ev.Message.Content, ev.Message.ID)
			return
		}
	case protocol.EventUserOnline, protocol.EventUserOffline:
		var ev protocol.PresenceChange
		if err := env.Bind(&ev); err == nil {
			fmt.Printf("*** %s is %s ***\n", ev.UserID, strings.TrimPrefix(env.Event.String(), "user_"))
			return
		}
	}
	data, _ := json.Marshal(env.Data)
	fmt.Printf("<%s> %s\n", env.Event, data)
}

func printEntry(e client.Entry) {
	status := e.Status
	if e.Optimistic {
		status = string(e.LocalStatus)
	}
	content := e.Content
	if !e.IsActive && !e.Optimistic {
		content = "(recalled)"
	} else if e.IsUpdated {
		content += " (edited)"
	}
	fmt.Printf("%s %s: %s [%s]\n", e.CreatedAt.Format(time.Kitchen), e.SenderID, content, status)
}
