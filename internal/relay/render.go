package relay

import (
	"fmt"
	"html"
	"strings"

	"insta-relay/internal/models"
	"insta-relay/internal/utils"
)

const captionPreview = 120

func escape(s string) string {
	return html.EscapeString(s)
}

func profileURL(username string) string {
	return "https://www.instagram.com/" + username + "/"
}

func helpText() string {
	var md strings.Builder
	md.WriteString("<b>Instagram 查询机器人 / Instagram lookup bot</b>\n\n")
	md.WriteString("/profile &lt;username&gt;\n账号资料 / Account profile\n\n")
	md.WriteString("/posts &lt;username&gt; [n]\n最近帖子 / Recent posts (1-10)\n\n")
	md.WriteString("/cancel\n关闭当前会话 / Close the current session\n\n")
	md.WriteString("也可以直接发送 @username 或主页链接。\nYou can also send @username or a profile link.")
	return md.String()
}

func hintText() string {
	return "请使用命令（如 /profile nasa）或发送 @username。\nPlease use a command (e.g. /profile nasa) or send @username. /help"
}

func renderProfile(p *models.Profile) string {
	var md strings.Builder
	name := p.FullName
	if name == "" {
		name = p.Username
	}
	md.WriteString(fmt.Sprintf("<b>%s</b> (@%s)", escape(name), escape(p.Username)))
	if p.IsVerified {
		md.WriteString(" ✅")
	}
	md.WriteString("\n")
	if p.IsPrivate {
		md.WriteString("🔒 私密账号 / Private account\n")
	}
	if p.Biography != "" {
		md.WriteString("\n" + escape(p.Biography) + "\n")
	}
	md.WriteString("\n")
	md.WriteString(fmt.Sprintf("粉丝 / Followers: <b>%s</b>\n", utils.FormatCount(p.Followers)))
	md.WriteString(fmt.Sprintf("关注 / Following: <b>%s</b>\n", utils.FormatCount(p.Following)))
	md.WriteString(fmt.Sprintf("帖子 / Posts: <b>%s</b>\n", utils.FormatCount(p.MediaCount)))
	if p.ExternalURL != "" {
		md.WriteString(fmt.Sprintf("链接 / Link: %s\n", escape(p.ExternalURL)))
	}
	return md.String()
}

func renderPosts(username string, posts []models.Post) string {
	if len(posts) == 0 {
		return fmt.Sprintf("@%s 暂无帖子。\n@%s has no posts yet.", escape(username), escape(username))
	}

	var md strings.Builder
	md.WriteString(fmt.Sprintf("<b>@%s 最近 %d 条帖子 / latest %d posts</b>\n", escape(username), len(posts), len(posts)))
	for i, p := range posts {
		md.WriteString(fmt.Sprintf("\n%d. <a href=\"%s\">%s</a>", i+1, escape(p.URL()), p.TakenAt.Format("2006-01-02")))
		switch p.MediaType {
		case models.MediaVideo:
			md.WriteString(" 🎬")
		case models.MediaCarousel:
			md.WriteString(" 🗂")
		}
		md.WriteString(fmt.Sprintf(" ❤️ %s 💬 %s\n", utils.FormatCount(p.Likes), utils.FormatCount(p.Comments)))
		if caption := strings.TrimSpace(p.Caption); caption != "" {
			md.WriteString(escape(utils.Truncate(caption, captionPreview)) + "\n")
		}
	}
	return md.String()
}
