package store

import (
	"crypto/md5" //nolint:gosec // content-addressing key, not a security boundary
	"encoding/base64"
	"encoding/json"
	"strconv"
	"strings"

	"github.com/swarmrun/swarmrun/internal/models"
)

// ComputeArgsHash returns the base64-encoded MD5 digest of the normalised
// argument blob, or the empty string for a blank or `{}` payload.
func ComputeArgsHash(args []byte) string {
	trimmed := strings.TrimSpace(string(args))
	if trimmed == "" || trimmed == "{}" {
		return ""
	}
	sum := md5.Sum(args) //nolint:gosec
	return base64.StdEncoding.EncodeToString(sum[:])
}

// commonFileKeyFields are the argument keys probed, in order, when deriving
// a best-effort canonical file key from a tool's arguments. Tool
// implementations are external to this system; this is a best-effort
// fallback, not an authoritative schema.
var commonFileKeyFields = []string{"file_path", "path", "filename", "file"}

// NormalizedFilenameFromArgs extracts a lowercased, trimmed file key from a
// tool-call argument blob, returning "" when no recognised field is
// present.
func NormalizedFilenameFromArgs(args []byte) string {
	var decoded map[string]any
	if err := json.Unmarshal(args, &decoded); err != nil {
		return ""
	}
	for _, field := range commonFileKeyFields {
		if v, ok := decoded[field]; ok {
			if s, ok := v.(string); ok && strings.TrimSpace(s) != "" {
				return strings.ToLower(strings.TrimSpace(s))
			}
		}
	}
	return ""
}

// DuplicateMatch describes a duplicate found by DetectDuplicate.
type DuplicateMatch struct {
	Found          bool
	DuplicateOf    int
	RejectionNote  string
}

// DetectDuplicate implements the duplicate-detection scan: given a
// prospective tool invocation under policy P for the current (not yet
// persisted) turn currentTurnIdx, it walks the conversation's existing
// turns to decide whether this call is a repeat of an earlier one.
//
// turns must be ascending by TurnIdx and already loaded for the
// conversation; state carries the current build epoch used to resolve
// until-build.
func DetectDuplicate(turns []models.Turn, candidate models.ToolInvocation, state models.AgentState, currentTurnIdx int) DuplicateMatch {
	if candidate.PreservationPolicy == models.PreservationUntilBuild {
		return detectUntilBuildDuplicate(turns, candidate, state)
	}
	return detectHistoryDuplicate(turns, candidate, currentTurnIdx)
}

// detectUntilBuildDuplicate resolves the until-build policy against the
// build-epoch counter: the last eligible invocation of the same tool
// matches iff it was recorded at the conversation's current build epoch
// (i.e. nothing has built since).
func detectUntilBuildDuplicate(turns []models.Turn, candidate models.ToolInvocation, state models.AgentState) DuplicateMatch {
	for i := len(turns) - 1; i >= 0; i-- {
		inv := turns[i].ToolInvocation
		if inv == nil || inv.ToolName != candidate.ToolName {
			continue
		}
		if !inv.Eligible() {
			continue
		}
		if inv.BuildEpochAtRecord == state.BuildEpoch {
			return DuplicateMatch{
				Found:         true,
				DuplicateOf:   turns[i].TurnIdx,
				RejectionNote: "duplicate of turn " + strconv.Itoa(turns[i].TurnIdx) + " (no build since)",
			}
		}
		return DuplicateMatch{}
	}
	return DuplicateMatch{}
}

// detectHistoryDuplicate implements the general (non until-build) scan:
// walk turns strictly before currentTurnIdx in reverse order, skip
// ineligible and differently-named tool turns, and match on args_hash when
// present, else normalized_filename. For non-mutating tools, a match is
// discarded if a mutating turn intervenes between the match and T.
func detectHistoryDuplicate(turns []models.Turn, candidate models.ToolInvocation, currentTurnIdx int) DuplicateMatch {
	matchIdx := -1
	for i := len(turns) - 1; i >= 0; i-- {
		t := turns[i]
		if t.TurnIdx >= currentTurnIdx {
			continue
		}
		inv := t.ToolInvocation
		if inv == nil || !inv.Eligible() || inv.ToolName != candidate.ToolName {
			continue
		}
		if candidate.ArgsHash != "" {
			if inv.ArgsHash == candidate.ArgsHash {
				matchIdx = i
				break
			}
			continue
		}
		if candidate.NormalizedFilename != "" && inv.NormalizedFilename == candidate.NormalizedFilename {
			matchIdx = i
			break
		}
	}

	if matchIdx < 0 {
		return DuplicateMatch{}
	}

	isMutating := candidate.ToolType == models.ToolTypeMutating || candidate.ToolName == models.RunBashToolName
	if !isMutating && hasInterveningMutator(turns, matchIdx, currentTurnIdx, candidate.NormalizedFilename) {
		return DuplicateMatch{}
	}

	return DuplicateMatch{
		Found:         true,
		DuplicateOf:   turns[matchIdx].TurnIdx,
		RejectionNote: "duplicate of turn " + strconv.Itoa(turns[matchIdx].TurnIdx),
	}
}

// hasInterveningMutator reports whether any turn strictly between the
// match and currentTurnIdx is a mutating turn. run_bash always counts;
// other mutating-type tools only count if they share the candidate's
// normalised file key.
func hasInterveningMutator(turns []models.Turn, matchIdx, currentTurnIdx int, normalizedFilename string) bool {
	for i := matchIdx + 1; i < len(turns); i++ {
		t := turns[i]
		if t.TurnIdx >= currentTurnIdx {
			continue
		}
		inv := t.ToolInvocation
		if inv == nil {
			continue
		}
		if inv.ToolName == models.RunBashToolName {
			return true
		}
		if inv.ToolType == models.ToolTypeMutating && normalizedFilename != "" && inv.NormalizedFilename == normalizedFilename {
			return true
		}
	}
	return false
}

