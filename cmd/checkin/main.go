// Command checkin is the scanning client: it reads decoded QR codes from a
// line-oriented reader (a USB scanner, a serial port, or stdin), validates
// them, and checks the signed-in member in or out through the API.
//
//	checkin -email wanjiru@member.test -password demo1234
//	checkin -email desk@gymdesk.test -password demo1234 -member <id> -device /dev/ttyACM0
package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/Elizabethomito/gymdesk/backend/internal/attendance"
	"github.com/Elizabethomito/gymdesk/backend/internal/checkin"
	"github.com/Elizabethomito/gymdesk/backend/internal/config"
	"github.com/Elizabethomito/gymdesk/backend/internal/logging"
	"github.com/Elizabethomito/gymdesk/backend/internal/models"
	"github.com/Elizabethomito/gymdesk/backend/internal/qr"
	"github.com/Elizabethomito/gymdesk/backend/internal/scan"
)

func main() {
	var (
		email    = flag.String("email", os.Getenv("GYMDESK_EMAIL"), "account to sign in with")
		password = flag.String("password", os.Getenv("GYMDESK_PASSWORD"), "password for -email")
		member   = flag.String("member", "", "member to check in (staff only; defaults to the signed-in user)")
		device   = flag.String("device", scan.StdinDevice, `QR reader path, or "-" for stdin`)
		branch   = flag.Int64("branch", 0, "branch this scanner stands in (0 uses the account's branch)")
		autoOut  = flag.Bool("auto-checkout", false, "when the reader is stdin, check an open session out without asking")
	)
	flag.Parse()

	if err := run(*email, *password, *member, *device, *branch, *autoOut); err != nil {
		fmt.Fprintln(os.Stderr, "checkin:", err)
		os.Exit(1)
	}
}

func run(email, password, memberID, device string, branch int64, autoCheckout bool) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	logger := logging.New(cfg.LogLevel, os.Stderr)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if email == "" || password == "" {
		return errors.New("-email and -password are required")
	}
	client := attendance.NewClient(cfg.APIBaseURL, "")
	login, err := client.Login(ctx, email, password)
	if err != nil {
		return errors.New(attendance.UserMessage(err))
	}
	if memberID == "" {
		memberID = login.User.ID
	}

	vctx := qr.ValidationContext{ExpectedPurpose: qr.Purpose(cfg.QRPurpose)}
	switch {
	case branch > 0:
		vctx.CallerBranchID = &branch
	case login.User.BranchID != nil:
		vctx.CallerBranchID = login.User.BranchID
	}

	flow := checkin.NewFlow(client, prompter(device, autoCheckout, os.Stdin, os.Stdout), memberID, vctx, cfg.ScanWindow(), logger)
	if cfg.QRBranchID > 0 {
		flow.DefaultBranchID = cfg.QRBranchID
	}
	if history, err := client.History(ctx, memberID); err == nil {
		flow.Tracker.Sync(memberID, history)
	} else {
		logger.Warn("could not load attendance history", "err", err)
	}

	cam := &scan.LineCamera{
		Listed: []scan.DeviceInfo{{ID: device, Label: "QR reader"}},
		Rear:   device,
	}
	scanner := scan.NewScanner(cam, logger)
	flow.Dedup.Reset()
	sess, err := scanner.Start(ctx, func(ctx context.Context, text string, at time.Time) {
		out := flow.HandleScan(ctx, text, at)
		if out.Kind == checkin.Suppressed {
			return
		}
		fmt.Println(out.Message)
	})
	if err != nil {
		var de *scan.DeviceError
		if errors.As(err, &de) {
			return errors.New(de.Remediation())
		}
		return err
	}

	fmt.Printf("Signed in as %s. Scan a check-in code.\n", login.User.Name)
	select {
	case <-ctx.Done():
		scanner.Stop()
	case <-sess.Done():
	}
	sess.Wait()

	var de *scan.DeviceError
	if errors.As(sess.Err(), &de) {
		return errors.New(de.Remediation())
	}
	if err := sess.Err(); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}

// prompter asks before checking an open session out. When decodes arrive
// on stdin the answer cannot be read from it too: the open session is
// shown and the checkout is declined unless the operator passed
// -auto-checkout.
func prompter(device string, autoCheckout bool, in io.Reader, out io.Writer) checkin.Prompter {
	if device == scan.StdinDevice {
		return checkin.PrompterFunc(func(ctx context.Context, open models.AttendanceRecord) (bool, error) {
			fmt.Fprintf(out, "Already checked in since %s (session %d).\n", open.CheckIn.Local().Format(time.Kitchen), open.ID)
			if !autoCheckout {
				fmt.Fprintln(out, "Not checking out. Restart with -auto-checkout, or use a reader device, to check out by scanning.")
			}
			return autoCheckout, nil
		})
	}
	answers := bufio.NewReader(in)
	return checkin.PrompterFunc(func(ctx context.Context, open models.AttendanceRecord) (bool, error) {
		fmt.Fprintf(out, "You checked in at %s. Check out now? [y/N] ", open.CheckIn.Local().Format(time.Kitchen))
		line, err := answers.ReadString('\n')
		if err != nil && !errors.Is(err, io.EOF) {
			return false, err
		}
		answer := strings.ToLower(strings.TrimSpace(line))
		return answer == "y" || answer == "yes", nil
	})
}
