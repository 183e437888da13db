package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"mime"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"

	spacechat "github.com/awebai/spacechat"
	"github.com/awebai/spacechat/chatconfig"
	"github.com/awebai/spacechat/room"
)

func main() {
	loadDotenvBestEffort()

	if len(os.Args) < 2 {
		usage()
		os.Exit(2)
	}

	cmd := os.Args[1]
	args := os.Args[2:]

	switch cmd {
	case "login":
		runLogin(args)
	case "me":
		runMe(args)
	case "rooms":
		runRooms(args)
	case "history":
		runHistory(args)
	case "send":
		runSend(args)
	case "send-file":
		runSendFile(args)
	case "watch":
		runWatch(args)
	default:
		usage()
		os.Exit(2)
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, "spacechat - room chat client")
	fmt.Fprintln(os.Stderr, "")
	fmt.Fprintln(os.Stderr, "Usage:")
	fmt.Fprintln(os.Stderr, "  spacechat login --token ... [--url ... | --server ...] [--account ...] [--room ...] [--set-default]")
	fmt.Fprintln(os.Stderr, "  spacechat me [--account ...]")
	fmt.Fprintln(os.Stderr, "  spacechat rooms [--account ...] [--max N]")
	fmt.Fprintln(os.Stderr, "  spacechat history [--account ...] [--room ...] [--max N]")
	fmt.Fprintln(os.Stderr, "  spacechat send [--account ...] [--room ...] --text ...")
	fmt.Fprintln(os.Stderr, "  spacechat send-file [--account ...] [--room ...] --file PATH [--text ...]")
	fmt.Fprintln(os.Stderr, "  spacechat watch [--account ...] [--room ...] [--transport sse|ws] [--log-level ...]")
	fmt.Fprintln(os.Stderr, "")
	fmt.Fprintln(os.Stderr, "Config:")
	fmt.Fprintln(os.Stderr, "  ~/.config/spacechat/config.yaml (or SPACECHAT_CONFIG_PATH)")
	fmt.Fprintln(os.Stderr, "  .spacechat/context in the current directory or a parent")
	fmt.Fprintln(os.Stderr, "")
	fmt.Fprintln(os.Stderr, "Env overrides (optional):")
	fmt.Fprintln(os.Stderr, "  SPACECHAT_SERVER")
	fmt.Fprintln(os.Stderr, "  SPACECHAT_URL")
	fmt.Fprintln(os.Stderr, "  SPACECHAT_TOKEN")
	fmt.Fprintln(os.Stderr, "  SPACECHAT_ACCOUNT")
	fmt.Fprintln(os.Stderr, "  SPACECHAT_ROOM")
}

func loadDotenvBestEffort() {
	// Best effort: load from current working directory.
	_ = godotenv.Load()
	_ = godotenv.Overload(".env.spacechat")
}

type resolved struct {
	client *spacechat.Client
	sel    *chatconfig.Selection
	global *chatconfig.GlobalConfig
}

func mustResolve(accountName, roomID string) resolved {
	cfg, err := chatconfig.LoadGlobal()
	if err != nil {
		fmt.Fprintln(os.Stderr, "Failed to read config:", err)
		os.Exit(2)
	}
	wd, _ := os.Getwd()
	sel, err := chatconfig.Resolve(cfg, chatconfig.ResolveOptions{
		AccountName:       accountName,
		RoomID:            roomID,
		WorkingDir:        wd,
		AllowEnvOverrides: true,
	})
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}
	c, err := spacechat.NewWithToken(sel.BaseURL, sel.Token)
	if err != nil {
		fmt.Fprintln(os.Stderr, "Invalid base URL:", err)
		os.Exit(2)
	}
	return resolved{client: c, sel: sel, global: cfg}
}

func mustRoom(sel *chatconfig.Selection) room.ID {
	if sel.RoomID == "" {
		fmt.Fprintln(os.Stderr, "No room selected (use --room, SPACECHAT_ROOM, or default_room)")
		os.Exit(2)
	}
	return room.ID(sel.RoomID)
}

func mustPlatform(r resolved) *room.ClientPlatform {
	mode, err := room.ParseReadStatusMode(r.global.Session.WithDefaults().ReadStatus)
	if err != nil {
		fatal(err)
	}
	return room.NewClientPlatform(r.client, mode)
}

func runLogin(args []string) {
	fs := flag.NewFlagSet("login", flag.ExitOnError)
	var urlFlag, serverFlag, tokenFlag, accountFlag, roomFlag string
	var setDefault, writeContext bool
	fs.StringVar(&urlFlag, "url", "", "Base URL of the chat server (default: SPACECHAT_URL)")
	fs.StringVar(&serverFlag, "server", "", "Server name in config.yaml (default: derive from --url host)")
	fs.StringVar(&tokenFlag, "token", "", "Access token (default: SPACECHAT_TOKEN)")
	fs.StringVar(&accountFlag, "account", "", "Account name in config.yaml (default: derived from server and person)")
	fs.StringVar(&roomFlag, "room", "", "Default room id for this account")
	fs.BoolVar(&setDefault, "set-default", false, "Set this account as default_account")
	fs.BoolVar(&writeContext, "write-context", false, "Write .spacechat/context in the current directory")
	_ = fs.Parse(args)

	token := strings.TrimSpace(tokenFlag)
	if token == "" {
		token = strings.TrimSpace(os.Getenv("SPACECHAT_TOKEN"))
	}
	if token == "" {
		fmt.Fprintln(os.Stderr, "Missing token (use --token or SPACECHAT_TOKEN)")
		os.Exit(2)
	}

	baseURL, serverName, err := resolveBaseURLForLogin(urlFlag, serverFlag)
	if err != nil {
		fatal(err)
	}

	c, err := spacechat.NewWithToken(baseURL, token)
	if err != nil {
		fatal(err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	me, err := c.Me(ctx)
	if err != nil {
		fatal(err)
	}

	accountName := strings.TrimSpace(accountFlag)
	if accountName == "" {
		accountName = deriveAccountName(serverName, me.ID)
	}

	err = chatconfig.UpdateGlobal(func(cfg *chatconfig.GlobalConfig) error {
		if srv, ok := cfg.Servers[serverName]; !ok || strings.TrimSpace(srv.URL) == "" {
			srv.URL = baseURL
			cfg.Servers[serverName] = srv
		}
		cfg.Accounts[accountName] = chatconfig.Account{
			Server:      serverName,
			Token:       token,
			PersonID:    me.ID,
			DisplayName: me.Name(),
			DefaultRoom: strings.TrimSpace(roomFlag),
		}
		if strings.TrimSpace(cfg.DefaultAccount) == "" || setDefault {
			cfg.DefaultAccount = accountName
		}
		return nil
	})
	if err != nil {
		fatal(err)
	}

	if writeContext {
		if err := writeOrUpdateContext(accountName, roomFlag); err != nil {
			fatal(err)
		}
	}

	printJSON(map[string]string{
		"account":      accountName,
		"server":       serverName,
		"person_id":    me.ID,
		"display_name": me.Name(),
	})
}

func resolveBaseURLForLogin(urlFlag, serverFlag string) (baseURL, serverName string, err error) {
	global, err := chatconfig.LoadGlobal()
	if err != nil {
		return "", "", err
	}
	baseURL = strings.TrimSpace(urlFlag)
	serverName = strings.TrimSpace(serverFlag)
	if baseURL == "" {
		baseURL = strings.TrimSpace(os.Getenv("SPACECHAT_URL"))
	}
	if baseURL == "" && serverName != "" {
		if srv, ok := global.Servers[serverName]; ok && strings.TrimSpace(srv.URL) != "" {
			baseURL = strings.TrimSpace(srv.URL)
		} else if baseURL, err = chatconfig.DeriveBaseURLFromServerName(serverName); err != nil {
			return "", "", err
		}
	}
	if baseURL == "" {
		return "", "", fmt.Errorf("missing server (use --url or --server)")
	}
	if err := chatconfig.ValidateBaseURL(baseURL); err != nil {
		return "", "", err
	}
	if serverName == "" {
		if serverName, err = chatconfig.DeriveServerNameFromURL(baseURL); err != nil {
			return "", "", err
		}
	}
	return baseURL, serverName, nil
}

func runMe(args []string) {
	fs := flag.NewFlagSet("me", flag.ExitOnError)
	var accountName string
	fs.StringVar(&accountName, "account", "", "Account name from config.yaml (default: context/default_account)")
	_ = fs.Parse(args)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	me, err := mustResolve(accountName, "").client.Me(ctx)
	if err != nil {
		fatal(err)
	}
	printJSON(me)
}

func runRooms(args []string) {
	fs := flag.NewFlagSet("rooms", flag.ExitOnError)
	var accountName string
	var max int
	fs.StringVar(&accountName, "account", "", "Account name from config.yaml (default: context/default_account)")
	fs.IntVar(&max, "max", 50, "Max rooms")
	_ = fs.Parse(args)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	resp, err := mustResolve(accountName, "").client.ListRooms(ctx, max)
	if err != nil {
		fatal(err)
	}
	printJSON(resp)
}

type historyEntry struct {
	MessageID string `json:"message_id"`
	Author    string `json:"author"`
	Text      string `json:"text"`
}

type historyOutput struct {
	RoomID        string            `json:"room_id"`
	Members       map[string]string `json:"members"`
	Messages      []historyEntry    `json:"messages"`
	LastMessageID string            `json:"last_message_id,omitempty"`
	CaughtUp      []string          `json:"caught_up,omitempty"`
}

// runHistory prints a snapshot of the room without marking anything read.
func runHistory(args []string) {
	fs := flag.NewFlagSet("history", flag.ExitOnError)
	var accountName, roomID string
	var max int
	fs.StringVar(&accountName, "account", "", "Account name from config.yaml (default: context/default_account)")
	fs.StringVar(&roomID, "room", "", "Room id (default: SPACECHAT_ROOM, context, or account default_room)")
	fs.IntVar(&max, "max", 0, "Max messages (default: session.max_messages)")
	_ = fs.Parse(args)

	r := mustResolve(accountName, roomID)
	if max <= 0 {
		max = r.global.Session.WithDefaults().MaxMessages
	}
	loader := &room.SnapshotLoader{
		Platform:      mustPlatform(r),
		LocalPersonID: room.ID(r.sel.PersonID),
		MaxMessages:   max,
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	st, err := loader.Load(ctx, mustRoom(r.sel))
	if err != nil {
		fatal(err)
	}
	printJSON(toHistoryOutput(st))
}

func toHistoryOutput(st room.RoomState) historyOutput {
	out := historyOutput{
		RoomID:        st.RoomID.String(),
		Members:       make(map[string]string, len(st.Members)),
		Messages:      make([]historyEntry, 0, len(st.Messages)),
		LastMessageID: st.LastMessageID.String(),
	}
	for id, name := range st.Members {
		out.Members[id.String()] = name
	}
	for _, e := range st.Messages {
		if e.Kind != room.EntryMessage {
			continue
		}
		out.Messages = append(out.Messages, historyEntry{
			MessageID: e.MessageID.String(),
			Author:    e.AuthorDisplayName,
			Text:      e.Text,
		})
	}
	for _, id := range st.CaughtUp() {
		out.CaughtUp = append(out.CaughtUp, id.String())
	}
	return out
}

func runSend(args []string) {
	fs := flag.NewFlagSet("send", flag.ExitOnError)
	var accountName, roomID, text string
	fs.StringVar(&accountName, "account", "", "Account name from config.yaml (default: context/default_account)")
	fs.StringVar(&roomID, "room", "", "Room id (default: SPACECHAT_ROOM, context, or account default_room)")
	fs.StringVar(&text, "text", "", "Message text")
	_ = fs.Parse(args)

	if strings.TrimSpace(text) == "" {
		fmt.Fprintln(os.Stderr, "Missing required flags")
		os.Exit(2)
	}

	r := mustResolve(accountName, roomID)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := room.NewSender(mustPlatform(r)).SendText(ctx, mustRoom(r.sel), text); err != nil {
		fatal(err)
	}
	printJSON(map[string]string{"status": "sent"})
}

func runSendFile(args []string) {
	fs := flag.NewFlagSet("send-file", flag.ExitOnError)
	var accountName, roomID, path, text string
	fs.StringVar(&accountName, "account", "", "Account name from config.yaml (default: context/default_account)")
	fs.StringVar(&roomID, "room", "", "Room id (default: SPACECHAT_ROOM, context, or account default_room)")
	fs.StringVar(&path, "file", "", "Path of the file to attach")
	fs.StringVar(&text, "text", "", "Optional message text")
	_ = fs.Parse(args)

	if strings.TrimSpace(path) == "" {
		fmt.Fprintln(os.Stderr, "Missing required flags")
		os.Exit(2)
	}

	r := mustResolve(accountName, roomID)
	file, closeFile, err := openAttachment(path)
	if err != nil {
		fatal(err)
	}
	defer closeFile()

	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()

	if err := room.NewSender(mustPlatform(r)).SendFile(ctx, mustRoom(r.sel), file, text); err != nil {
		fatal(err)
	}
	printJSON(map[string]string{"status": "sent", "file": file.Name})
}

func openAttachment(path string) (room.File, func(), error) {
	f, err := os.Open(path)
	if err != nil {
		return room.File{}, nil, fmt.Errorf("opening attachment: %w", err)
	}
	name := filepath.Base(path)
	return room.File{
		Name:        name,
		ContentType: mime.TypeByExtension(filepath.Ext(name)),
		Content:     f,
	}, func() { _ = f.Close() }, nil
}

func sanitizeKeyComponent(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "" {
		return "x"
	}
	var b strings.Builder
	lastDash := false
	for _, r := range s {
		ok := (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') || r == '-' || r == '_' || r == '.'
		if ok {
			b.WriteRune(r)
			lastDash = false
			continue
		}
		if !lastDash {
			b.WriteByte('-')
			lastDash = true
		}
	}
	out := strings.Trim(b.String(), "-")
	if out == "" {
		return "x"
	}
	return out
}

func deriveAccountName(serverName, personID string) string {
	id := personID
	if len(id) > 12 {
		id = id[len(id)-12:]
	}
	return "acct-" + sanitizeKeyComponent(serverName) + "__" + sanitizeKeyComponent(id)
}

func writeOrUpdateContext(accountName, roomID string) error {
	wd, err := os.Getwd()
	if err != nil {
		return err
	}
	ctxPath, err := chatconfig.FindContextPath(wd)
	if err != nil {
		ctxPath = filepath.Join(wd, chatconfig.ContextRelativePath())
	}

	ctx := &chatconfig.DirContext{}
	if existing, err := chatconfig.LoadContextFrom(ctxPath); err == nil {
		ctx = existing
	}
	ctx.DefaultAccount = accountName
	if strings.TrimSpace(roomID) != "" {
		ctx.DefaultRoom = strings.TrimSpace(roomID)
	}
	return chatconfig.SaveContextTo(ctxPath, ctx)
}

func printJSON(v any) {
	data, _ := json.MarshalIndent(v, "", "  ")
	fmt.Println(string(data))
}

func fatal(err error) {
	fmt.Fprintln(os.Stderr, err.Error())
	os.Exit(1)
}
