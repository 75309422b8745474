package content

import (
	"context"
	"fmt"
	"strings"
)

// Mock renders fixed templates.  The output depends only on the request.
type Mock struct{}

var openers = map[string]string{
	"friendly":     "We are delighted to invite you",
	"formal":       "The association cordially invites its members",
	"enthusiastic": "Get ready, something great is coming",
}

func (Mock) Generate(_ context.Context, req Request) (Result, error) {
	if err := req.Validate(); err != nil {
		return Result{}, err
	}
	opener, ok := openers[req.Tone]
	if !ok {
		opener = openers["friendly"]
	}
	var b strings.Builder
	switch req.Kind {
	case KindEventDescription:
		fmt.Fprintf(&b, "%s: %s.\n\n", opener, req.Topic)
		fmt.Fprintf(&b, "Join fellow members for %s. Expect practical sessions, time to meet "+
			"people who share your interests and plenty of room for questions.\n\n", req.Topic)
		b.WriteString("Seats are limited, so register early to secure your badge.")
	case KindNewsletter:
		fmt.Fprintf(&b, "Subject: %s\n\n", titleCase(req.Topic))
		b.WriteString("Dear members,\n\n")
		fmt.Fprintf(&b, "%s to catch up on %s. ", opener, req.Topic)
		b.WriteString("Here is what has been happening in the association and what is coming next.\n\n")
		b.WriteString("See you soon,\nThe organizing team")
	case KindSocialPost:
		tag := strings.ReplaceAll(titleCase(req.Topic), " ", "")
		fmt.Fprintf(&b, "%s! %s is on the calendar. Register now and bring a friend. #%s", opener, titleCase(req.Topic), tag)
	}
	return Result{Kind: req.Kind, Content: b.String(), Source: SourceMock}, nil
}

func titleCase(s string) string {
	words := strings.Fields(s)
	for i, w := range words {
		words[i] = strings.ToUpper(w[:1]) + w[1:]
	}
	return strings.Join(words, " ")
}
