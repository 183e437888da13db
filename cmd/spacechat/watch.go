package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"sort"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/awebai/spacechat/chatconfig"
	"github.com/awebai/spacechat/logging"
	"github.com/awebai/spacechat/room"
)

func runWatch(args []string) {
	fs := flag.NewFlagSet("watch", flag.ExitOnError)
	var accountName, roomID, transport, logLevel string
	var max int
	fs.StringVar(&accountName, "account", "", "Account name from config.yaml (default: context/default_account)")
	fs.StringVar(&roomID, "room", "", "Room id (default: SPACECHAT_ROOM, context, or account default_room)")
	fs.StringVar(&transport, "transport", "", "Live feed transport: sse or ws (default: session.transport)")
	fs.StringVar(&logLevel, "log-level", "", "Log level (default: log.level)")
	fs.IntVar(&max, "max", 0, "Max messages loaded on entry (default: session.max_messages)")
	_ = fs.Parse(args)

	r := mustResolve(accountName, roomID)
	roomRef := mustRoom(r.sel)
	session := r.global.Session.WithDefaults()
	if transport == "" {
		transport = session.Transport
	}
	if max <= 0 {
		max = session.MaxMessages
	}

	logCfg := r.global.Log
	if logLevel != "" {
		logCfg.Level = logLevel
	}
	logger := logging.New(logCfg)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx = logging.WithLogger(ctx, logger)

	source, err := openSource(ctx, r, transport)
	if err != nil {
		fatal(err)
	}

	printer := &feedPrinter{out: os.Stdout, self: room.ID(r.sel.PersonID)}
	s := room.NewSession(mustPlatform(r), room.Options{
		LocalPersonID:  room.ID(r.sel.PersonID),
		MaxMessages:    max,
		Logger:         logger,
		OnStateChanged: printer.render,
		OnNotice:       printer.notice,
	})
	defer s.Close()

	enterCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	err = s.EnterRoom(enterCtx, roomRef, source)
	cancel()
	if err != nil {
		fatal(err)
	}

	lines := make(chan string)
	go readLines(os.Stdin, lines)

	for {
		select {
		case <-ctx.Done():
			return
		case <-s.Done():
			if err := s.Err(); err != nil && !errors.Is(err, context.Canceled) {
				fatal(err)
			}
			return
		case line, ok := <-lines:
			if !ok {
				return
			}
			if quit := handleLine(ctx, s, printer, line); quit {
				return
			}
		}
	}
}

func openSource(ctx context.Context, r resolved, transport string) (room.EventSource, error) {
	log := logging.Ctx(ctx)
	switch transport {
	case chatconfig.TransportWebSocket:
		conn, err := r.client.DialActivity(ctx)
		if err != nil {
			return nil, fmt.Errorf("dialing activity feed: %w", err)
		}
		return room.NewActivitySource(conn, room.URNCodec{Prefix: r.sel.URNPrefix}, log), nil
	default:
		stream, err := r.client.EventStream(ctx, "messages", "memberships", "rooms")
		if err != nil {
			return nil, fmt.Errorf("opening event stream: %w", err)
		}
		return room.NewSSESource(stream, log), nil
	}
}

func readLines(in io.Reader, out chan<- string) {
	defer close(out)
	sc := bufio.NewScanner(in)
	for sc.Scan() {
		out <- sc.Text()
	}
}

// handleLine runs one line of user input. It reports whether to quit.
func handleLine(ctx context.Context, s *room.Session, p *feedPrinter, line string) bool {
	line = strings.TrimSpace(line)
	if line == "" {
		return false
	}
	log := logging.Ctx(ctx)
	cmd, rest, _ := strings.Cut(line, " ")
	var err error
	switch cmd {
	case "/quit":
		return true
	case "/away":
		_, err = s.SetAttention(ctx, room.Away)
	case "/back", "/looking":
		_, err = s.SetAttention(ctx, room.Looking)
	case "/read":
		_, err = s.Acknowledge(ctx)
	case "/members":
		st, _ := s.State()
		p.members(st)
	case "/file":
		path, text, _ := strings.Cut(strings.TrimSpace(rest), " ")
		var file room.File
		var closeFile func()
		file, closeFile, err = openAttachment(path)
		if err == nil {
			err = s.SendLocalFile(ctx, file, text)
			closeFile()
		}
	default:
		err = s.SendLocalMessage(ctx, line)
	}
	if err != nil {
		log.Warn().Err(err).Str("command", cmd).Msg("command failed")
		p.errorf("%v", err)
	}
	return false
}

// feedPrinter renders room state changes as incremental terminal output.
type feedPrinter struct {
	out  io.Writer
	self room.ID

	mu       sync.Mutex
	printed  map[room.ID]bool
	deleted  map[room.ID]bool
	boundary bool
	att      room.AttentionState
	caughtUp string
}

func (p *feedPrinter) render(st room.RoomState, att room.AttentionState) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.printed == nil {
		p.printed = map[room.ID]bool{}
		p.deleted = map[room.ID]bool{}
	}

	hasBoundary := false
	for _, e := range st.Messages {
		if e.Kind == room.EntryBoundary {
			hasBoundary = true
			if !p.boundary {
				fmt.Fprintln(p.out, "---- new messages ----")
			}
			continue
		}
		if e.Deleted {
			if !p.deleted[e.MessageID] {
				p.deleted[e.MessageID] = true
				p.printed[e.MessageID] = true
				fmt.Fprintf(p.out, "[%s] (message deleted)\n", e.AuthorDisplayName)
			}
			continue
		}
		if p.printed[e.MessageID] {
			continue
		}
		p.printed[e.MessageID] = true
		name := e.AuthorDisplayName
		if e.AuthorPersonID == p.self {
			name += " (you)"
		}
		fmt.Fprintf(p.out, "[%s] %s\n", name, e.Text)
	}
	p.boundary = hasBoundary

	if att != p.att {
		p.att = att
		fmt.Fprintf(p.out, "* you are %s\n", att)
	}

	var names []string
	for _, id := range st.CaughtUp() {
		names = append(names, st.DisplayName(id))
	}
	if line := strings.Join(names, ", "); line != p.caughtUp {
		p.caughtUp = line
		if line != "" {
			fmt.Fprintf(p.out, "* seen by %s\n", line)
		}
	}
}

func (p *feedPrinter) notice(n room.Notice) {
	p.mu.Lock()
	defer p.mu.Unlock()
	fmt.Fprintf(p.out, "* %s\n", n.Text)
}

func (p *feedPrinter) members(st room.RoomState) {
	p.mu.Lock()
	defer p.mu.Unlock()
	names := make([]string, 0, len(st.Members))
	for _, name := range st.Members {
		names = append(names, name)
	}
	sort.Strings(names)
	fmt.Fprintf(p.out, "* %d members: %s\n", len(names), strings.Join(names, ", "))
}

func (p *feedPrinter) errorf(format string, args ...any) {
	p.mu.Lock()
	defer p.mu.Unlock()
	fmt.Fprintf(p.out, "! "+format+"\n", args...)
}
