package voter

import (
	"fmt"
	"strings"
)

// RedoOption is the trailing candidate that reruns the vote with random
// maps instead of changing anything.
const RedoOption = "None of the above (do nothing)"

// Broadcast templates shown to players in game.
const (
	startVoteTemplate      = "Please cast a vote for the next map by typing the corresponding number in AllChat.\n%s"
	voteResultTemplate     = "The map with the most votes is: %s with %d votes!"
	voteRedoTemplate       = "The none of the above option had the most votes (%d votes). !rtv to restart map vote."
	voteFailedMessage      = "The map vote failed!"
	votingOverMessage      = "Voting is over!"
	quorumProgressTemplate = "%d more requests needed to start a map vote."
)

// startVoteMessage renders the vote announcement with its numbered
// candidate list.
func startVoteMessage(candidates []string) string {
	return fmt.Sprintf(startVoteTemplate, formatCandidates(candidates))
}

func voteResultMessage(winner string, votes int) string {
	return fmt.Sprintf(voteResultTemplate, winner, votes)
}

func voteRedoMessage(votes int) string {
	return fmt.Sprintf(voteRedoTemplate, votes)
}

func quorumProgressMessage(needed int) string {
	return fmt.Sprintf(quorumProgressTemplate, needed)
}

// formatCandidates renders the numbered candidate list players vote with.
func formatCandidates(candidates []string) string {
	lines := make([]string, len(candidates))
	for i, candidate := range candidates {
		lines[i] = fmt.Sprintf("%d) %s", i+1, candidate)
	}
	return strings.Join(lines, "\n")
}

// adminBroadcast builds the chat-broadcast admin command for a message.
// Newlines stay literal inside the quotes; the server renders them as line
// breaks.
func adminBroadcast(message string) string {
	return fmt.Sprintf(`AdminBroadcast "%s"`, message)
}

// adminSetNextMap builds the set-next-map admin command.
func adminSetNextMap(name string) string {
	return fmt.Sprintf(`AdminSetNextMap "%s"`, name)
}
