package mail

import (
	"bytes"
	"embed"
	htmltmpl "html/template"
	"net/mail"
	"strconv"
	texttmpl "text/template"
	"time"

	"github.com/pkg/errors"
)

//go:embed templates/*.txt templates/*.gohtml
var templateFS embed.FS

var (
	textTemplates = texttmpl.Must(texttmpl.New("").Option("missingkey=error").ParseFS(templateFS, "templates/*.txt"))
	htmlTemplates = htmltmpl.Must(htmltmpl.New("").Option("missingkey=error").ParseFS(templateFS, "templates/*.gohtml"))
)

// AppName is shown in subjects and bodies.
var AppName = "Lernova Attendsheets"

type codeData struct {
	AppName   string
	Name      string
	Code      string
	ExpiresIn string
}

func render(name string, data any) (text, html string, err error) {
	var tb, hb bytes.Buffer
	if err := textTemplates.ExecuteTemplate(&tb, name+".txt", data); err != nil {
		return "", "", errors.Wrapf(err, "render %s.txt", name)
	}
	if err := htmlTemplates.ExecuteTemplate(&hb, name+".gohtml", data); err != nil {
		return "", "", errors.Wrapf(err, "render %s.gohtml", name)
	}
	return tb.String(), hb.String(), nil
}

// Verification renders the signup verification email.
func Verification(to mail.Address, code string, ttl time.Duration) (Message, error) {
	text, html, err := render("verification", codeData{AppName: AppName, Name: to.Name, Code: code, ExpiresIn: humanize(ttl)})
	if err != nil {
		return Message{}, err
	}
	return Message{To: to, Subject: "Verify Your " + AppName + " Account", Text: text, HTML: html}, nil
}

// PasswordReset renders the password reset email.
func PasswordReset(to mail.Address, code string, ttl time.Duration) (Message, error) {
	text, html, err := render("password_reset", codeData{AppName: AppName, Name: to.Name, Code: code, ExpiresIn: humanize(ttl)})
	if err != nil {
		return Message{}, err
	}
	return Message{To: to, Subject: "Reset Your " + AppName + " Password", Text: text, HTML: html}, nil
}

// ContactNotification renders a support inbox notification for a contact submission.
func ContactNotification(inbox string, name, email, subject, message string) (Message, error) {
	data := struct{ Name, Email, Subject, Message string }{name, email, subject, message}
	text, html, err := render("contact", data)
	if err != nil {
		return Message{}, err
	}
	return Message{To: mail.Address{Address: inbox}, Subject: "[Contact] " + subject, Text: text, HTML: html}, nil
}

func humanize(d time.Duration) string {
	if d%time.Minute == 0 && d >= time.Minute {
		m := int(d / time.Minute)
		if m == 1 {
			return "1 minute"
		}
		return strconv.Itoa(m) + " minutes"
	}
	return d.String()
}
