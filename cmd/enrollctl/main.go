// Package main はCLIツールのエントリポイント。
package main

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"encoding/pem"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"autoenroll-service/internal/infra"
	"autoenroll-service/pkg/httputil"
)

const version = "1.0.0"

var (
	apiURL    string
	principal string
	output    string
	timeout   time.Duration
)

// HTTPクライアント
var httpClient *http.Client

func main() {
	rootCmd := &cobra.Command{
		Use:   "enrollctl",
		Short: "Autoenrollment service CLI",
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			if apiURL == "" {
				apiURL = os.Getenv("ENROLLCTL_API_URL")
			}
			if principal == "" {
				principal = os.Getenv("ENROLLCTL_PRINCIPAL")
			}
			httpClient = &http.Client{Timeout: timeout}
		},
	}

	// グローバルフラグ
	rootCmd.PersistentFlags().StringVar(&apiURL, "api-url", "", "Service URL (or set ENROLLCTL_API_URL)")
	rootCmd.PersistentFlags().StringVar(&principal, "principal", "", "Authenticated principal sent as X-Remote-User (or set ENROLLCTL_PRINCIPAL)")
	rootCmd.PersistentFlags().StringVar(&output, "output", "text", "Output format: text, json")
	rootCmd.PersistentFlags().DurationVar(&timeout, "timeout", 30*time.Second, "Request timeout")

	// サブコマンド登録
	rootCmd.AddCommand(requestCmd())
	rootCmd.AddCommand(statusCmd())
	rootCmd.AddCommand(sealKeyCmd())
	rootCmd.AddCommand(migrateCmd)
	rootCmd.AddCommand(versionCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// versionCmd はバージョン情報を表示する。
func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("enrollctl version %s\n", version)
		},
	}
}

// requestCmd は証明書発行コマンド。
func requestCmd() *cobra.Command {
	var csrFile, outFile string
	var debug bool
	cmd := &cobra.Command{
		Use:   "request",
		Short: "Submit a certificate request and save the PKCS#7 response",
		RunE: func(cmd *cobra.Command, args []string) error {
			payload, err := readRequestPayload(csrFile)
			if err != nil {
				return err
			}

			form := url.Values{"request": {payload}}
			if debug {
				form.Set("debug", "true")
			}
			body, err := postForm(form)
			if err != nil {
				return err
			}

			if debug {
				fmt.Print(body)
				return nil
			}
			if !strings.HasPrefix(body, httputil.PKCS7Header) {
				return fmt.Errorf("Error: %s", strings.TrimSpace(body))
			}

			if outFile != "" {
				if err := os.WriteFile(outFile, []byte(body), 0o644); err != nil {
					return fmt.Errorf("writing %s: %w", outFile, err)
				}
			}
			if output == "json" {
				return json.NewEncoder(os.Stdout).Encode(map[string]string{"pkcs7": body})
			}
			if outFile != "" {
				fmt.Printf("Saved certificate to %s\n", outFile)
			} else {
				fmt.Print(body)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&csrFile, "csr", "", "PKCS#10 request file, PEM or DER (required)")
	cmd.Flags().StringVar(&outFile, "out", "", "Write the PKCS#7 response to this file")
	cmd.Flags().BoolVar(&debug, "debug", false, "Ask the service for diagnostic output instead of a certificate")
	cmd.MarkFlagRequired("csr")
	return cmd
}

// statusCmd は更新要否の問い合わせコマンド。
func statusCmd() *cobra.Command {
	var csrFile, template string
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Ask whether the certificate for a template needs renewal",
		RunE: func(cmd *cobra.Command, args []string) error {
			payload, err := readRequestPayload(csrFile)
			if err != nil {
				return err
			}

			body, err := postForm(url.Values{
				"request":  {payload},
				"command":  {"status"},
				"template": {template},
			})
			if err != nil {
				return err
			}

			verdict := strings.TrimSpace(body)
			if output == "json" {
				return json.NewEncoder(os.Stdout).Encode(map[string]string{"template": template, "status": verdict})
			}
			fmt.Println(verdict)
			return nil
		},
	}
	cmd.Flags().StringVar(&csrFile, "csr", "", "PKCS#10 request file, PEM or DER (required)")
	cmd.Flags().StringVar(&template, "template", "", "Certificate template name (required)")
	cmd.MarkFlagRequired("csr")
	cmd.MarkFlagRequired("template")
	return cmd
}

// sealKeyCmd はCA秘密鍵をCloud KMSで暗号化するコマンド。
func sealKeyCmd() *cobra.Command {
	var inFile, outFile, keyName string
	cmd := &cobra.Command{
		Use:   "seal-key",
		Short: "Encrypt a CA private key with Cloud KMS for CA_KEY_FILE",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := context.Background()
			if keyName == "" {
				keyName = os.Getenv("KMS_KEY_NAME")
			}
			if keyName == "" {
				return fmt.Errorf("--kms-key is required (or set KMS_KEY_NAME)")
			}

			plaintext, err := os.ReadFile(inFile)
			if err != nil {
				return fmt.Errorf("reading %s: %w", inFile, err)
			}
			if _, err := infra.ParsePrivateKey(plaintext); err != nil {
				return fmt.Errorf("%s is not a usable private key: %w", inFile, err)
			}

			kmsClient, err := infra.NewKMSClient(ctx, keyName)
			if err != nil {
				return fmt.Errorf("failed to init KMS client: %w", err)
			}
			defer kmsClient.Close()

			ciphertext, err := kmsClient.Encrypt(ctx, plaintext)
			if err != nil {
				return fmt.Errorf("encrypting key: %w", err)
			}
			if err := os.WriteFile(outFile, ciphertext, 0o600); err != nil {
				return fmt.Errorf("writing %s: %w", outFile, err)
			}
			fmt.Printf("Sealed %s to %s\n", inFile, outFile)
			return nil
		},
	}
	cmd.Flags().StringVar(&inFile, "in", "", "PEM private key to seal (required)")
	cmd.Flags().StringVar(&outFile, "out", "", "Output file for the sealed key (required)")
	cmd.Flags().StringVar(&keyName, "kms-key", "", "Cloud KMS key resource name (or set KMS_KEY_NAME)")
	cmd.MarkFlagRequired("in")
	cmd.MarkFlagRequired("out")
	return cmd
}

// readRequestPayload はPEMまたはDERのPKCS#10を読み、Base64にする。
func readRequestPayload(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("reading %s: %w", path, err)
	}
	if block, _ := pem.Decode(data); block != nil {
		data = block.Bytes
	}
	if len(data) == 0 {
		return "", fmt.Errorf("%s is empty", path)
	}
	return base64.StdEncoding.EncodeToString(data), nil
}

func postForm(form url.Values) (string, error) {
	if apiURL == "" {
		return "", fmt.Errorf("--api-url is required (or set ENROLLCTL_API_URL)")
	}

	req, err := http.NewRequest(http.MethodPost, strings.TrimRight(apiURL, "/")+"/autoenroll", strings.NewReader(form.Encode()))
	if err != nil {
		return "", fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	if principal != "" {
		req.Header.Set("X-Remote-User", principal)
	}

	resp, err := httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("API request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("reading response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return "", handleErrorResponse(resp.StatusCode, body)
	}
	return string(body), nil
}

func handleErrorResponse(statusCode int, body []byte) error {
	if msg := strings.TrimSpace(string(body)); msg != "" {
		return fmt.Errorf("Error: %s", msg)
	}
	return fmt.Errorf("Error: server returned status %d", statusCode)
}
