package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/spf13/cobra"
)

func newCallCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "call NAME [ARGS_JSON]",
		Short: "Invoke a tool on a running hub",
		Example: `  toolhub call calculator '{"expression":"2*(3+4)"}'
  toolhub call --addr http://hub:8080 --token $TOKEN list_directory`,
		Args: cobra.RangeArgs(1, 2),
		RunE: runCall,
	}
	cmd.Flags().String("addr", "http://localhost:8080", "hub base URL")
	cmd.Flags().String("token", "", "bearer token, when the hub requires one")
	cmd.Flags().Duration("timeout", 0, "per-call timeout sent to the hub (0 uses the tool default)")
	return cmd
}

type callRequest struct {
	Name      string          `json:"name"`
	Arguments json.RawMessage `json:"arguments"`
	TimeoutMS int64           `json:"timeout_ms,omitempty"`
}

func runCall(cmd *cobra.Command, args []string) error {
	addr, _ := cmd.Flags().GetString("addr")
	token, _ := cmd.Flags().GetString("token")
	timeout, _ := cmd.Flags().GetDuration("timeout")

	req := callRequest{Name: args[0], Arguments: json.RawMessage("{}"), TimeoutMS: timeout.Milliseconds()}
	if len(args) == 2 {
		if !json.Valid([]byte(args[1])) {
			return fmt.Errorf("arguments are not valid JSON: %s", args[1])
		}
		req.Arguments = json.RawMessage(args[1])
	}
	body, err := json.Marshal(req)
	if err != nil {
		return err
	}

	httpReq, err := http.NewRequestWithContext(cmd.Context(), http.MethodPost,
		strings.TrimRight(addr, "/")+"/tools/run", bytes.NewReader(body))
	if err != nil {
		return err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if token != "" {
		httpReq.Header.Set("Authorization", "Bearer "+token)
	}

	// The hub enforces the call deadline; the client timeout only guards
	// against a hung connection.
	client := &http.Client{}
	if timeout > 0 {
		client.Timeout = timeout + 30*time.Second
	}
	resp, err := client.Do(httpReq)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	out, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}

	var pretty bytes.Buffer
	if json.Indent(&pretty, out, "", "  ") == nil {
		out = pretty.Bytes()
	}
	fmt.Fprintln(cmd.OutOrStdout(), strings.TrimSpace(string(out)))

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("hub answered %s", resp.Status)
	}
	return nil
}
