package schedule

import (
	"context"
	"fmt"
	"html/template"
	"log/slog"
	"strings"
	"sync/atomic"
	"time"

	"github.com/inkpress/stagehand/internal/notices"
	"github.com/inkpress/stagehand/internal/platform"
	"github.com/inkpress/stagehand/pkg/async"
	"github.com/inkpress/stagehand/pkg/email"
	"github.com/inkpress/stagehand/pkg/queue"
)

// DigestResult summarizes one daily summary run.
type DigestResult struct {
	Sent    int `json:"sent"`
	Skipped int `json:"skipped"`
	Failed  int `json:"failed"`
}

// sendDailySummaryEmail fans out over eligible recipients with bounded
// concurrency. A failure for one recipient never blocks the others; the
// job completes with per-outcome counts.
func (s *Service) sendDailySummaryEmail(ctx context.Context, job *queue.JobContext, _ struct{}) (any, error) {
	since := time.Now().Add(-s.digestWindow)

	recipients, err := s.recipients.DigestRecipients(ctx, since)
	if err != nil {
		return nil, err
	}
	if len(recipients) == 0 {
		return DigestResult{}, nil
	}

	var sent, skipped atomic.Int64
	errs := async.Each(ctx, recipients, s.fanoutLimit, func(ctx context.Context, r platform.DigestRecipient) error {
		ok, err := s.sendDigestTo(ctx, r, since)
		if err != nil {
			s.log.ErrorContext(ctx, "digest delivery failed",
				slog.String("user_id", r.UserID.String()),
				slog.String("error", err.Error()),
			)
			return err
		}
		if ok {
			sent.Add(1)
		} else {
			skipped.Add(1)
		}
		return nil
	})

	result := DigestResult{
		Sent:    int(sent.Load()),
		Skipped: int(skipped.Load()),
		Failed:  async.Failed(errs),
	}
	s.log.InfoContext(ctx, "daily summary run finished",
		slog.String("job_id", job.ID().String()),
		slog.Int("sent", result.Sent),
		slog.Int("skipped", result.Skipped),
		slog.Int("failed", result.Failed),
	)
	return result, nil
}

// sendDigestTo renders and sends one recipient's digest. It reports
// false when the recipient had nothing to summarize.
func (s *Service) sendDigestTo(ctx context.Context, r platform.DigestRecipient, since time.Time) (bool, error) {
	unread, err := s.notices.UnreadByUser(ctx, r.UserID, since)
	if err != nil {
		return false, err
	}

	var digestible []*notices.Notice
	for _, n := range unread {
		if n.Category.Digest() {
			digestible = append(digestible, n)
		}
	}
	if len(digestible) == 0 {
		return false, nil
	}

	body, err := renderDigest(r.DisplayName, notices.GroupByCategory(digestible))
	if err != nil {
		return false, err
	}

	if err := s.mailer.SendEmail(ctx, email.SendEmailParams{
		SendTo:   r.Email,
		Subject:  "Your daily summary",
		BodyHTML: body,
		Tag:      "daily-summary",
	}); err != nil {
		return false, err
	}
	return true, nil
}

var digestHeadings = map[notices.Category]string{
	notices.CategoryUserNewFollower:        "New followers",
	notices.CategoryArticleNewCollected:    "Articles collected",
	notices.CategoryArticleNewAppreciation: "New appreciations",
	notices.CategoryArticleNewSubscriber:   "New subscribers",
	notices.CategoryArticleNewComment:      "New comments",
	notices.CategoryArticleMentionedYou:    "Articles mentioning you",
	notices.CategoryCommentNewReply:        "Replies to your comments",
	notices.CategoryCommentMentionedYou:    "Comments mentioning you",
}

var digestTemplate = template.Must(template.New("digest").Parse(`<!DOCTYPE html>
<html>
<body>
<p>Hi {{.DisplayName}},</p>
<p>Here is what happened while you were away:</p>
{{range .Sections}}<h3>{{.Heading}}</h3>
<p>{{.Count}} new {{if eq .Count 1}}notice{{else}}notices{{end}}</p>
{{end}}<p>See everything in your notifications.</p>
</body>
</html>
`))

type digestSection struct {
	Heading string
	Count   int
}

type digestData struct {
	DisplayName string
	Sections    []digestSection
}

// renderDigest builds the digest body, sections ordered by the fixed
// category order.
func renderDigest(displayName string, grouped map[notices.Category][]*notices.Notice) (string, error) {
	data := digestData{DisplayName: displayName}
	for _, category := range notices.DigestCategories {
		list := grouped[category]
		if len(list) == 0 {
			continue
		}
		data.Sections = append(data.Sections, digestSection{
			Heading: digestHeadings[category],
			Count:   len(list),
		})
	}

	var buf strings.Builder
	if err := digestTemplate.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("schedule: render digest: %w", err)
	}
	return buf.String(), nil
}
