// ABOUTME: Thread listing and inspection CLI commands
// ABOUTME: Human-friendly views over the synced conversation data
package cli

import (
	"context"
	"flag"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/openhouse/leadsync/models"
	"github.com/openhouse/leadsync/ops"
)

// ListThreadsCommand prints the conversation list, newest first.
func ListThreadsCommand(session *ops.Session, args []string) error {
	fs := flag.NewFlagSet("list", flag.ExitOnError)
	limit := fs.Int("limit", 50, "Maximum results")
	unread := fs.Bool("unread", false, "Only unread threads")
	force := fs.Bool("force", false, "Refetch even if local data is fresh")
	_ = fs.Parse(args)

	var result models.OperationResult
	if *force {
		result = session.RefreshNow(context.Background())
	} else {
		result = session.FetchAllThreads(context.Background())
	}
	if !result.Success {
		return fmt.Errorf("fetching threads: %s", result.Error)
	}

	conversations, ok := result.Data.([]models.Conversation)
	if !ok {
		return fmt.Errorf("unexpected result payload %T", result.Data)
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tLEAD\tLAST MESSAGE\tMSGS\tEV\tFLAGS")
	shown := 0
	for _, conv := range conversations {
		if shown >= *limit {
			break
		}
		if *unread && conv.Thread.Read {
			continue
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%s\t%s\n",
			conv.Thread.ConversationID,
			conv.Thread.LeadName,
			conv.Thread.LastMessageAt.Format("2006-01-02 15:04"),
			len(conv.Messages),
			latestEVStatus(conv),
			threadFlags(conv.Thread))
		shown++
	}
	if err := w.Flush(); err != nil {
		return err
	}
	fmt.Printf("\n%d thread(s)\n", shown)
	return nil
}

// ShowThreadCommand prints one conversation with its message history.
func ShowThreadCommand(session *ops.Session, args []string) error {
	if len(args) == 0 {
		return fmt.Errorf("usage: show <conversation-id>")
	}
	id := args[0]

	result := session.FetchThread(context.Background(), id)
	if !result.Success {
		return fmt.Errorf("fetching thread %s: %s", id, result.Error)
	}
	conv, ok := result.Data.(models.Conversation)
	if !ok {
		return fmt.Errorf("unexpected result payload %T", result.Data)
	}

	fmt.Printf("Thread: %s\n", conv.Thread.ConversationID)
	fmt.Printf("Lead:   %s\n", conv.Thread.LeadName)
	if conv.Thread.ClientEmail != "" {
		fmt.Printf("Email:  %s\n", conv.Thread.ClientEmail)
	}
	if conv.Thread.Phone != "" {
		fmt.Printf("Phone:  %s\n", conv.Thread.Phone)
	}
	if conv.Thread.Location != "" {
		fmt.Printf("Where:  %s\n", conv.Thread.Location)
	}
	if flags := threadFlags(conv.Thread); flags != "" {
		fmt.Printf("Flags:  %s\n", flags)
	}
	fmt.Printf("Last:   %s\n\n", conv.Thread.LastMessageAt.Format("2006-01-02 15:04:05"))

	for _, msg := range conv.Messages {
		marker := "<-"
		if msg.Type == models.MessageOutbound {
			marker = "->"
		}
		fmt.Printf("%s [%s] %s\n", marker, msg.Date.Format("2006-01-02 15:04"), msg.Body)
		if len(msg.EVScores) > 0 {
			fmt.Printf("   ev: %.1f (%s)\n", models.CurrentEVScore(msg.EVScores), msg.EVStatus)
		}
	}
	return nil
}

// latestEVStatus reports the EV trend of the most recent scored message.
func latestEVStatus(conv models.Conversation) string {
	for i := len(conv.Messages) - 1; i >= 0; i-- {
		if len(conv.Messages[i].EVScores) > 0 {
			return fmt.Sprintf("%.1f %s",
				models.CurrentEVScore(conv.Messages[i].EVScores),
				conv.Messages[i].EVStatus)
		}
	}
	return "-"
}

func threadFlags(t models.Thread) string {
	flags := ""
	if t.Spam {
		flags += "spam "
	}
	if t.Flag {
		flags += "flagged "
	}
	if t.FlagForReview {
		flags += "review "
	}
	if t.Completed {
		flags += "done "
	}
	if !t.Read {
		flags += "unread "
	}
	if len(flags) > 0 {
		return flags[:len(flags)-1]
	}
	return flags
}
