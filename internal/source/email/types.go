package email

// SMTPConfig holds the SMTP server settings for sending campaign mail.
type SMTPConfig struct {
	Host     string
	Port     string
	Username string
	Password string
	TLS      bool
}

// IMAPConfig holds the IMAP server settings used to file a copy of every
// sent message.
type IMAPConfig struct {
	Host     string
	Port     string
	Username string
	Password string
	TLS      bool
	Mailbox  string
}

// Message is one outgoing campaign message.
type Message struct {
	From    string
	To      string
	Subject string
	HTML    string
}

// ParsedMessage holds the decoded parts of a built message.
type ParsedMessage struct {
	Subject   string
	From      string
	To        []string
	MessageID string
	TextBody  string
	HTMLBody  string
}
