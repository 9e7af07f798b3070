package senders

import "fmt"

// ReportSubject titles a dispatch email with its home-zone date context.
func ReportSubject(dateContext string) string {
	return fmt.Sprintf("Market Oracle: Change Analysis Report (%s)", dateContext)
}

type verificationEmailFormat struct {
	verifyURL string
}

func (ef *verificationEmailFormat) Subject() string {
	return "Market Oracle: Email verification required"
}

func (ef *verificationEmailFormat) Body() string {
	url := ef.verifyURL
	return fmt.Sprintf(`Click here to verify your email: <a href="%s">%s</a>`, url, url)
}
