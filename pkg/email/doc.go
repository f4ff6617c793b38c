// Package email sends transactional notification emails.
//
// EmailSender is implemented by the Postmark client for production and by
// DevSender, which writes each message to disk as HTML plus a JSON
// metadata file. Both validate SendEmailParams before sending.
//
// Postmark rejections that can never succeed (invalid or inactive
// recipient) are reported as ErrInvalidRecipient; every other failure is
// ErrFailedToSendEmail and may be retried.
//
//	sender, err := email.NewPostmarkClient(cfg)
//	if err != nil {
//		return err
//	}
//	err = sender.SendEmail(ctx, email.SendEmailParams{
//		SendTo:   "user@example.com",
//		Subject:  "Build finished",
//		BodyHTML: html,
//		BodyText: text,
//		Tag:      "task",
//	})
//
// The templates subpackage renders the HTML layout with templ.
package email
