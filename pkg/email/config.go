package email

// Config holds outbound email settings. The Postmark token is optional so
// development environments can run with the file sender instead.
type Config struct {
	PostmarkServerToken string `env:"POSTMARK_SERVER_TOKEN"`
	SenderEmail         string `env:"SENDER_EMAIL,required"`
	SupportEmail        string `env:"SUPPORT_EMAIL,required"`
	DevOutputDir        string `env:"EMAIL_DEV_OUTPUT_DIR" envDefault:"./tmp/emails"`
}
