// mockwebhook sends a signed, provider-shaped payment notification to a
// running server, for local testing without provider sandboxes.
package main

import (
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/google/uuid"

	"github.com/DrXenon2/BuySell-sub000/internal/modules/providers"
)

func main() {
	provider := flag.String("provider", "mtn", "Provider (mtn, orange, wave, stripe)")
	secret := flag.String("secret", os.Getenv("MOCK_WEBHOOK_SECRET"), "Callback/webhook secret of the provider")
	paymentID := flag.String("payment-id", "", "Internal payment id the event refers to")
	status := flag.String("status", "succeeded", "Outcome (pending, succeeded, failed, cancelled)")
	reference := flag.String("reference", "", "Provider reference (random when empty)")
	url := flag.String("url", "", "Webhook URL (default http://localhost:8080/webhooks/payments/<provider>)")
	dryRun := flag.Bool("dry-run", false, "Only print headers and body, don't send")

	flag.Parse()

	kind, ok := providers.ParseKind(*provider)
	if !ok {
		fail("unknown provider %q", *provider)
	}
	if *secret == "" {
		fail("secret not provided and MOCK_WEBHOOK_SECRET not set")
	}
	if *paymentID == "" {
		fail("-payment-id is required")
	}
	if *reference == "" {
		*reference = uuid.NewString()
	}
	if *url == "" {
		*url = "http://localhost:8080/webhooks/payments/" + string(kind)
	}

	body, err := json.Marshal(payload(kind, *paymentID, *status, *reference))
	if err != nil {
		fail("marshal payload: %v", err)
	}

	header := providers.SignatureHeader(kind)
	sig := providers.Sign(kind, *secret, body, time.Now())

	fmt.Printf("%s: %s\n", header, sig)
	fmt.Printf("Body: %s\n", body)

	if *dryRun {
		fmt.Println("\n[DRY RUN] Not sending request")
		return
	}

	fmt.Printf("\nSending to %s...\n", *url)
	req, err := http.NewRequest(http.MethodPost, *url, bytes.NewReader(body))
	if err != nil {
		fail("create request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(header, sig)

	resp, err := (&http.Client{Timeout: 10 * time.Second}).Do(req)
	if err != nil {
		fail("send request: %v", err)
	}
	defer resp.Body.Close()

	respBody, _ := io.ReadAll(resp.Body)
	fmt.Printf("Status: %d\n", resp.StatusCode)
	fmt.Printf("Response: %s\n", respBody)

	if resp.StatusCode >= 300 {
		os.Exit(1)
	}
}

// payload mimics what each provider posts, using its own status words.
func payload(kind providers.Kind, paymentID, status, ref string) any {
	switch kind {
	case providers.KindMTN:
		return map[string]any{
			"externalId":             paymentID,
			"financialTransactionId": ref,
			"status":                 pick(status, "PENDING", "SUCCESSFUL", "FAILED", "EXPIRED"),
		}
	case providers.KindOrange:
		return map[string]any{
			"order_id":  paymentID,
			"pay_token": ref,
			"txnid":     "MP" + time.Now().Format("060102.1504.A00001"),
			"status":    pick(status, "PENDING", "SUCCESS", "FAILED", "EXPIRED"),
		}
	case providers.KindWave:
		evType := "checkout.session.completed"
		if status == "failed" {
			evType = "checkout.session.payment_failed"
		}
		return map[string]any{
			"id":   "EV_" + uuid.NewString(),
			"type": evType,
			"data": map[string]any{
				"id":               ref,
				"client_reference": paymentID,
				"checkout_status":  pick(status, "open", "complete", "complete", "expired"),
				"payment_status":   pick(status, "processing", "succeeded", "failed", "cancelled"),
			},
		}
	default:
		return map[string]any{
			"id":   "evt_" + uuid.NewString(),
			"type": pick(status, "payment_intent.processing", "payment_intent.succeeded", "payment_intent.payment_failed", "payment_intent.canceled"),
			"data": map[string]any{
				"object": map[string]any{
					"id":       ref,
					"status":   pick(status, "processing", "succeeded", "requires_payment_method", "canceled"),
					"metadata": map[string]string{"payment_id": paymentID},
				},
			},
		}
	}
}

func pick(status, pending, succeeded, failed, cancelled string) string {
	switch status {
	case "succeeded":
		return succeeded
	case "failed":
		return failed
	case "cancelled":
		return cancelled
	default:
		return pending
	}
}

func fail(format string, args ...any) {
	fmt.Fprintf(os.Stderr, "Error: "+format+"\n", args...)
	os.Exit(1)
}
