package commands

import (
	"bufio"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/inquest-app/inquest/pkg/cli"
	"github.com/inquest-app/inquest/pkg/client"
	"github.com/inquest-app/inquest/pkg/demux"
)

var (
	chatURL            string
	chatMode           string
	chatCaseID         string
	chatInquiryID      string
	chatShowReflection bool
)

var chatCmd = &cobra.Command{
	Use:   "chat",
	Short: "Interactive terminal client against a running server",
	Long: `Interactive terminal client.

Each line you type is one turn. The assistant's response streams in as
it is generated; extracted signals and suggested actions are printed
after it. Ctrl-C aborts the in-flight turn (a second Ctrl-C exits).

Commands inside the session:
  /retry   resend the last message after an error
  /quit    exit

Example:
  inquest chat --url http://127.0.0.1:8600/v1/turn --mode case --case-id C-17`,
	RunE: runChat,
}

func init() {
	chatCmd.Flags().StringVar(&chatURL, "url", "http://127.0.0.1:8600/v1/turn", "turn endpoint URL")
	chatCmd.Flags().StringVar(&chatMode, "mode", "", "conversation mode (general, case, inquiry)")
	chatCmd.Flags().StringVar(&chatCaseID, "case-id", "", "case id (mode=case)")
	chatCmd.Flags().StringVar(&chatInquiryID, "inquiry-id", "", "inquiry id (mode=inquiry)")
	chatCmd.Flags().BoolVar(&chatShowReflection, "show-reflection", false, "print the assistant's private reflection")
	rootCmd.AddCommand(chatCmd)
}

func runChat(cmd *cobra.Command, args []string) error {
	styles := cli.NewStyles(cli.DefaultTheme)
	out := os.Stdout

	th := client.NewThread(&client.HTTPTransport{URL: chatURL}, client.Options{
		Mode:      chatMode,
		CaseID:    chatCaseID,
		InquiryID: chatInquiryID,
		OnEvent: func(ev demux.Event) {
			switch e := ev.(type) {
			case demux.ResponseDelta:
				fmt.Fprint(out, e.Delta)
			case demux.ReflectionDelta:
				if chatShowReflection {
					fmt.Fprint(out, styles.Reflection.Render(e.Delta))
				}
			case demux.SignalsReady:
				for _, s := range e.Signals {
					fmt.Fprintf(out, "\n%s %s",
						styles.Signal.Render("◆ "+s.Type+":"), s.Text)
				}
			case demux.ActionHintsReady:
				for _, h := range e.Hints {
					fmt.Fprintf(out, "\n%s %s",
						styles.Hint.Render("→"), h.Label)
				}
			}
		},
	})
	defer th.Abort()

	// First Ctrl-C aborts the in-flight turn; a second one exits.
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		th.Abort()
		<-sigCh
		os.Exit(130)
	}()

	fmt.Fprintln(out, styles.Help.Render("connected to "+chatURL+" — /quit to exit"))

	in := bufio.NewScanner(os.Stdin)
	for {
		fmt.Fprint(out, styles.Prompt.Render("you › "))
		if !in.Scan() {
			fmt.Fprintln(out)
			return in.Err()
		}
		line := strings.TrimSpace(in.Text())

		switch line {
		case "/quit", "/exit":
			return nil
		case "/retry":
			if err := th.Retry(); err != nil {
				fmt.Fprintln(out, styles.Error.Render(err.Error()))
				continue
			}
		case "":
			continue
		default:
			if err := th.Send(line); err != nil {
				fmt.Fprintln(out, styles.Error.Render(err.Error()))
				continue
			}
		}

		fmt.Fprint(out, styles.Label.Render("inquest › "))
		th.Wait()
		fmt.Fprintln(out)

		switch th.State() {
		case client.StateErrored:
			v := th.View()
			fmt.Fprintln(out, styles.Error.Render("turn failed: "+v.Err))
			fmt.Fprintln(out, styles.Help.Render("your message was kept — /retry to resend"))
		case client.StateAborted:
			v := th.View()
			fmt.Fprintln(out, styles.Help.Render("turn aborted: "+v.Err))
		}
	}
}
