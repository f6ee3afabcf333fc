package relay

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"insta-relay/internal/config"
	"insta-relay/internal/dialog"
	"insta-relay/internal/instagram"
	"insta-relay/internal/models"
	"insta-relay/internal/utils"
)

// Commands understood by the bridge.
const (
	CmdStart   = "start"
	CmdHelp    = "help"
	CmdProfile = "profile"
	CmdPosts   = "posts"
	CmdCancel  = "cancel"
)

// Error kinds reported in Result.Error.
const (
	ErrKindUnknownCommand = "unknown_command"
	ErrKindBadArgument    = "bad_argument"
	ErrKindNotFound       = "not_found"
	ErrKindPrivate        = "private_account"
	ErrKindTimeout        = "timeout"
	ErrKindUpstream       = "upstream"
)

// MaxPosts is the largest feed page the bridge returns; it is also the
// Telegram media group limit.
const MaxPosts = 10

// Bridge turns chat commands into Instagram lookups.
type Bridge struct {
	client         instagram.Client
	dialogs        *dialog.Manager
	feedLimit      int
	timeout        time.Duration
	cancelKeywords []string
}

// NewBridge wires the Instagram client and the dialog manager.
func NewBridge(client instagram.Client, dialogs *dialog.Manager, cfg *config.Config) *Bridge {
	return &Bridge{
		client:         client,
		dialogs:        dialogs,
		feedLimit:      cfg.Instagram.FeedLimit,
		timeout:        cfg.Relay.RequestTimeout,
		cancelKeywords: cfg.Relay.CancelKeywords,
	}
}

// request is an inbound message resolved to a command.
type request struct {
	command string
	args    []string
}

// Handle answers one inbound message. It never returns a nil-equivalent
// result: failures are reported through Result.Error and a user-facing text.
func (b *Bridge) Handle(ctx context.Context, msg models.InboundMessage) models.Result {
	startTime := time.Now()
	if msg.RequestID == "" {
		msg.RequestID = uuid.New().String()
	}
	if b.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, b.timeout)
		defer cancel()
	}

	req, ok := b.resolve(msg)
	var res models.Result
	if !ok {
		res = failure(ErrKindUnknownCommand, hintText())
	} else {
		res = b.dispatch(ctx, msg, req)
	}
	res.RequestID = msg.RequestID
	res.Took = time.Since(startTime)

	label := req.command
	if !ok || !isKnownCommand(label) {
		label = "unknown"
	}
	status := "ok"
	if !res.Success {
		status = res.Error
	}
	commandsCounter.WithLabelValues(label, status).Inc()
	commandDurationHist.WithLabelValues(label).Observe(res.Took.Seconds())

	entry := logrus.WithFields(logrus.Fields{
		"time":       time.Now().Format("2006-01-02 15:04:05"),
		"method":     "Handle",
		"request_id": msg.RequestID,
		"chat_id":    msg.ChatID,
		"user_id":    msg.UserID,
		"command":    label,
		"took":       res.Took,
	})
	if res.Success {
		entry.Info("Command relayed")
	} else {
		entry.WithField("error", res.Error).Warn("Command failed")
	}
	return res
}

// resolve works out which command a message asks for. Callback data is
// "<command>:<arg>"; plain text completes a pending dialog or is read as a
// profile reference.
func (b *Bridge) resolve(msg models.InboundMessage) (request, bool) {
	if msg.IsCallback() {
		action, arg, _ := strings.Cut(msg.CallbackData, ":")
		req := request{command: strings.ToLower(action)}
		if arg != "" {
			req.args = []string{arg}
		}
		return req, true
	}

	command, args := msg.Command, msg.Args
	if command == "" {
		command, args = ParseCommand(msg.Text)
	}
	if command != "" {
		// any new command replaces a half-finished dialog
		if command != CmdCancel && msg.UserID != 0 {
			b.dialogs.Complete(msg.UserID)
		}
		return request{command: command, args: args}, true
	}

	text := strings.TrimSpace(msg.Text)
	for _, kw := range b.cancelKeywords {
		if strings.EqualFold(text, kw) {
			return request{command: CmdCancel}, true
		}
	}

	if msg.UserID != 0 {
		if state, ok := b.dialogs.Complete(msg.UserID); ok {
			return request{command: state.Command, args: strings.Fields(text)}, true
		}
	}

	if strings.HasPrefix(text, "@") || strings.Contains(strings.ToLower(text), "instagram.com/") {
		if _, ok := utils.NormalizeUsername(text); ok {
			return request{command: CmdProfile, args: []string{text}}, true
		}
	}
	return request{}, false
}

func (b *Bridge) dispatch(ctx context.Context, msg models.InboundMessage, req request) models.Result {
	switch req.command {
	case CmdStart, CmdHelp:
		return success(helpText())
	case CmdCancel:
		if msg.UserID != 0 && b.dialogs.CancelDialog(msg.UserID) {
			return success("当前会话已关闭。\nCurrent session has been closed.")
		}
		return success("没有进行中的会话。\nThere is no active session.")
	case CmdProfile:
		username, res, ok := b.username(msg, req)
		if !ok {
			return res
		}
		return b.profile(ctx, username)
	case CmdPosts:
		username, res, ok := b.username(msg, req)
		if !ok {
			return res
		}
		limit := b.feedLimit
		if len(req.args) > 1 {
			n, err := strconv.Atoi(req.args[1])
			if err != nil {
				return failure(ErrKindBadArgument, "帖子数量无效。\nInvalid number of posts: "+escape(req.args[1]))
			}
			limit = n
		}
		// counts are clamped into [1, MaxPosts]
		if limit < 1 {
			limit = 1
		}
		if limit > MaxPosts {
			limit = MaxPosts
		}
		return b.posts(ctx, username, limit)
	default:
		return failure(ErrKindUnknownCommand, "未知命令。\nUnknown command: /"+escape(req.command)+"\n\n"+helpText())
	}
}

// username validates the first argument, opening a dialog when it is missing.
func (b *Bridge) username(msg models.InboundMessage, req request) (string, models.Result, bool) {
	if len(req.args) == 0 {
		if msg.UserID == 0 {
			return "", failure(ErrKindBadArgument, "缺少用户名。\nMissing username."), false
		}
		b.dialogs.StartDialog(msg.UserID, msg.ChatID, req.command)
		return "", success("请输入 Instagram 用户名：\nPlease enter an Instagram username:"), false
	}
	name, ok := utils.NormalizeUsername(req.args[0])
	if !ok {
		return "", failure(ErrKindBadArgument, "用户名无效。\nInvalid username: "+escape(req.args[0])), false
	}
	return name, models.Result{}, true
}

func (b *Bridge) profile(ctx context.Context, username string) models.Result {
	p, err := b.client.Profile(ctx, username)
	if err != nil {
		return upstreamFailure(username, err)
	}
	res := success(renderProfile(p))
	if p.PictureURL != "" {
		res.Photos = []string{p.PictureURL}
	}
	if !p.IsPrivate {
		res.Buttons = append(res.Buttons, models.Button{Text: "📷 最近帖子 / Recent posts", Data: CmdPosts + ":" + p.Username})
	}
	res.Buttons = append(res.Buttons, models.Button{Text: "🔗 Instagram", URL: profileURL(p.Username)})
	return res
}

func (b *Bridge) posts(ctx context.Context, username string, limit int) models.Result {
	posts, err := b.client.RecentPosts(ctx, username, limit)
	if err != nil {
		return upstreamFailure(username, err)
	}
	if len(posts) > limit {
		posts = posts[:limit]
	}
	res := success(renderPosts(username, posts))
	for _, p := range posts {
		if p.ImageURL != "" {
			res.Photos = append(res.Photos, p.ImageURL)
		}
	}
	res.Buttons = []models.Button{
		{Text: "👤 资料 / Profile", Data: CmdProfile + ":" + username},
		{Text: "🔗 Instagram", URL: profileURL(username)},
	}
	return res
}

func upstreamFailure(username string, err error) models.Result {
	switch {
	case errors.Is(err, instagram.ErrNotFound):
		return failure(ErrKindNotFound, "未找到账号。\nAccount not found: @"+escape(username))
	case errors.Is(err, instagram.ErrPrivate):
		return failure(ErrKindPrivate, "该账号为私密账号。\n@"+escape(username)+" is a private account.")
	case errors.Is(err, context.DeadlineExceeded):
		return failure(ErrKindTimeout, "Instagram 响应超时，请稍后重试。\nInstagram did not answer in time, please try again later.")
	default:
		logrus.WithField("username", username).Errorf("Instagram lookup failed: %v", err)
		return failure(ErrKindUpstream, "Instagram 请求失败，请稍后重试。\nInstagram request failed, please try again later.")
	}
}

// ParseCommand splits "/posts@MyBot nasa 3" into ("posts", ["nasa", "3"]).
// Text that does not start with a slash yields an empty command.
func ParseCommand(text string) (string, []string) {
	fields := strings.Fields(text)
	if len(fields) == 0 || !strings.HasPrefix(fields[0], "/") {
		return "", nil
	}
	command := strings.TrimPrefix(fields[0], "/")
	if at := strings.IndexByte(command, '@'); at >= 0 {
		command = command[:at]
	}
	return strings.ToLower(command), fields[1:]
}

func isKnownCommand(c string) bool {
	switch c {
	case CmdStart, CmdHelp, CmdProfile, CmdPosts, CmdCancel:
		return true
	}
	return false
}

func success(text string) models.Result {
	return models.Result{Success: true, Text: text}
}

func failure(kind, text string) models.Result {
	return models.Result{Success: false, Error: kind, Text: "❌ " + text}
}
