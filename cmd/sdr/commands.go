package main

import (
	"errors"
	"fmt"
	"io"

	"github.com/urfave/cli/v2"

	"github.com/hal9000y/sdr/internal/format"
	"github.com/hal9000y/sdr/internal/sdr"
)

const finalOutputPreview = 200

// errReported is returned once the failure has already been explained on the command output.
var errReported = errors.New("command failed")

func testEmailCommand() *cli.Command {
	return &cli.Command{
		Name:   "test-email",
		Usage:  "Send a test email to verify the email configuration",
		Action: runTestEmail,
	}
}

func runTestEmail(c *cli.Context) error {
	w := c.App.Writer
	_, _ = fmt.Fprintln(w, "Testing email configuration...")

	err := func() error {
		svc, tok, err := newMailer(appConfig(c), "http://"+defaultHTTPAddr+"/oauth")
		if err != nil {
			return err
		}
		defer persistToken(tok)
		if err := requireToken(tok); err != nil {
			return err
		}

		res, err := svc.SendTest(c.Context)
		if err != nil {
			return err
		}

		_, _ = fmt.Fprintf(w, "✓ Test email sent successfully! Status code: %d\n", res.StatusCode)
		_, _ = fmt.Fprintln(w, "Please check your inbox (and spam folder) for the test email.")
		return nil
	}()
	if err != nil {
		_, _ = fmt.Fprintf(w, "✗ Failed to send test email: %v\n", err)
		printTroubleshooting(w)
		return errReported
	}

	return nil
}

func printTroubleshooting(w io.Writer) {
	_, _ = fmt.Fprintln(w, "\nTroubleshooting:")
	_, _ = fmt.Fprintln(w, "1. Check your SENDGRID_API_KEY in .env file")
	_, _ = fmt.Fprintln(w, "2. Verify your sender email in SendGrid dashboard")
	_, _ = fmt.Fprintln(w, "3. Check spam folder")
	_, _ = fmt.Fprintln(w, "4. For SSL errors, point SDR_CA_BUNDLE or SSL_CERT_FILE at a PEM bundle with your CA certificates")
}

func sendCommand() *cli.Command {
	return &cli.Command{
		Name:      "send",
		Usage:     "Generate and send a sales email",
		ArgsUsage: "<message>",
		Flags: []cli.Flag{
			&cli.BoolFlag{Name: "no-handoff", Usage: "Send plain text with the send_email tool instead of handing off to the Email Manager"},
			&cli.StringFlag{Name: "trace-name", Value: sdr.DefaultTraceName, Usage: "Name for the trace"},
		},
		Action: func(c *cli.Context) error {
			message := c.Args().First()
			if message == "" {
				return fmt.Errorf("message is required")
			}
			return sendSalesEmail(c, message, !c.Bool("no-handoff"), c.String("trace-name"))
		},
	}
}

func sendSalesEmail(c *cli.Context, message string, useHandoff bool, traceName string) error {
	w := c.App.Writer
	_, _ = fmt.Fprintln(w, "Generating and sending sales email...")
	_, _ = fmt.Fprintf(w, "Message: %s\n", message)
	_, _ = fmt.Fprintf(w, "Using handoff: %t\n\n", useHandoff)

	m, done, err := newCLIManager(appConfig(c))
	if err != nil {
		return err
	}
	defer done()

	res, err := m.SendSalesEmail(c.Context, message, sdr.SendOptions{NoHandoff: !useHandoff, TraceName: traceName})
	if err != nil {
		return err
	}

	switch res.Outcome {
	case sdr.OutcomeBlocked:
		name := ""
		if res.NameCheck != nil {
			name = res.NameCheck.Name
		}
		_, _ = fmt.Fprintf(w, "✗ Request blocked: the message includes a personal name (%q). Nothing was sent.\n", name)
		return errReported
	case sdr.OutcomeNoDelivery:
		_, _ = fmt.Fprintln(w, "! The agents finished without sending an email.")
		_, _ = fmt.Fprintf(w, "Final output: %s\n", format.Preview(res.FinalOutput, finalOutputPreview))
		return errReported
	}

	_, _ = fmt.Fprintln(w, "✓ Email process completed!")
	_, _ = fmt.Fprintf(w, "Final output: %s\n", format.Preview(res.FinalOutput, finalOutputPreview))
	if res.Delivery != nil {
		_, _ = fmt.Fprintf(w, "Delivery status code: %d\n", res.Delivery.StatusCode)
	}
	_, _ = fmt.Fprintf(w, "Trace: %s (%s)\n", res.TraceName, res.TraceID)
	_, _ = fmt.Fprintln(w, "\nCheck your email inbox (and spam folder) for the sent email.")

	return nil
}

func draftsCommand() *cli.Command {
	return &cli.Command{
		Name:  "drafts",
		Usage: "Generate email drafts without sending and pick the best one",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "message", Value: sdr.DefaultDraftMessage, Usage: "Message/instruction for the sales email"},
		},
		Action: runDrafts,
	}
}

func runDrafts(c *cli.Context) error {
	w := c.App.Writer
	message := c.String("message")
	_, _ = fmt.Fprintln(w, "Generating email drafts...")
	_, _ = fmt.Fprintf(w, "Message: %s\n\n", message)

	m, done, err := newCLIManager(appConfig(c))
	if err != nil {
		return err
	}
	defer done()

	drafts, err := m.GenerateDrafts(c.Context, message)
	if err != nil {
		return err
	}

	_, _ = fmt.Fprintf(w, "Generated %d email drafts:\n\n", len(drafts))
	for i, d := range drafts {
		_, _ = fmt.Fprintf(w, "--- Draft %d ---\n%s\n\n", i+1, d)
	}

	_, _ = fmt.Fprintln(w, "Picking the best email...")
	best, err := m.PickBest(c.Context, drafts)
	if err != nil {
		return err
	}
	_, _ = fmt.Fprintf(w, "\n--- Best Email ---\n%s\n", best)

	return nil
}
