package parse

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestStripQuotesForwardMarker(t *testing.T) {
	body := "Hello\n\n------ Forwarded message ---------\nFrom: bob@x.com"
	require.Equal(t, "Hello", StripQuotes(body))
}

func TestStripQuotesWroteLine(t *testing.T) {
	body := "Thanks, that fixed it.\n\nOn Jan 1, 2024 <bob@x.com> wrote:\n> earlier text\n> more quoted"
	got := StripQuotes(body)
	require.Equal(t, "Thanks, that fixed it.", got)
	require.NotContains(t, got, "wrote:")
	require.NotContains(t, got, "quoted")
}

func TestStripQuotesWroteLineSpanningNewline(t *testing.T) {
	// Some clients wrap the attribution line before "wrote:".
	body := "Done.\nOn Mon, Feb 5, 2024 at 9:01 AM Alice <alice@x.com>\nwrote:\n> quoted"
	require.Equal(t, "Done.", StripQuotes(body))
}

func TestStripQuotesBoilerplateLines(t *testing.T) {
	body := "New voicemail from caller\nGoogle LLC\n1600 Amphitheatre Pkwy\nMountain View CA 94043 USA\nCall back soon"
	require.Equal(t, "New voicemail from caller\nCall back soon", StripQuotes(body))
}

func TestStripQuotesKeepsCleanBody(t *testing.T) {
	body := "The printer on floor 2 is jammed.\nPlease send someone."
	require.Equal(t, body, StripQuotes(body))
}

func TestStripQuotesDoesNotTruncateOnLookalikes(t *testing.T) {
	// "On ... wrote:" requires an <addr> segment; prose mentioning a date must
	// survive. Truncating real content is the failure mode to guard against.
	body := "On Jan 1 we upgraded the firmware.\nIt has been stable since."
	require.Equal(t, body, StripQuotes(body))
}

func TestStripQuotesTrimsWhitespace(t *testing.T) {
	require.Equal(t, "Hello", StripQuotes("\n\n  Hello \n\n"))
	require.Equal(t, "", StripQuotes("   \n \n"))
}
