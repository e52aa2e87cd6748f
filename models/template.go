package models

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// Template is the declarative schedule for one (courts, hours, players, type)
// configuration. Blocks are generated one phase at a time: stage blocks for
// tournaments, the regular block then the bracket block for playoffs.
type Template struct {
	Blocks []TemplateBlock `json:"blocks"`
}

type TemplateBlock struct {
	Label  string          `json:"label"`
	Rounds []TemplateRound `json:"rounds"`
}

type TemplateRound struct {
	Courts []TemplateCourt `json:"courts"`
}

// TemplateCourt encodes one game: two slots per team, each slot a player
// notation string (P3, S1P5, Winner of SF1, ...).
type TemplateCourt struct {
	A []string `json:"A"`
	B []string `json:"B"`
}

// TemplateKey builds the object key a configuration resolves to,
// e.g. "2C2H10P-T".
func TemplateKey(courts, hours, players int, sessionType SessionType) string {
	return fmt.Sprintf("%dC%dH%dP-%s", courts, hours, players, sessionType)
}

// GameCount is the total number of games the template declares across all
// blocks. For tournaments this is the progress denominator.
func (t *Template) GameCount() int {
	total := 0
	for _, block := range t.Blocks {
		for _, round := range block.Rounds {
			total += len(round.Courts)
		}
	}
	return total
}

var stageLabelRe = regexp.MustCompile(`Stage (\d)`)

// Stage extracts the tournament stage number from the block label, or 0 for
// non-stage blocks.
func (b *TemplateBlock) Stage() int {
	m := stageLabelRe.FindStringSubmatch(b.Label)
	if m == nil {
		return 0
	}
	n, _ := strconv.Atoi(m[1])
	return n
}

// PlayoffRound maps a bracket block label to its playoff round name.
func (b *TemplateBlock) PlayoffRound() string {
	label := strings.ToLower(b.Label)
	switch {
	case strings.Contains(label, "semi"):
		return PlayoffRoundSemifinal
	case strings.Contains(label, "bronze"):
		return PlayoffRoundBronze
	case strings.Contains(label, "gold"):
		return PlayoffRoundGold
	case strings.Contains(label, "medal"):
		return PlayoffRoundMedal
	case strings.Contains(label, "qualifier"):
		return PlayoffRoundQualifier
	case strings.Contains(label, "final"):
		return PlayoffRoundFinal
	default:
		return ""
	}
}

// IsPlayoff reports whether the block holds bracket games rather than
// regular-phase games.
func (b *TemplateBlock) IsPlayoff() bool {
	return b.PlayoffRound() != ""
}

// PlayerRefKind discriminates the closed set of slot notations.
type PlayerRefKind int

const (
	RefPosition  PlayerRefKind = iota // P<n>: creation order (stage 1) or current rank
	RefStageRank                      // S<stage>P<rank>: rank after the referenced stage
	RefWinnerOf                       // Winner of <ref>
	RefLoserOf                        // Loser of <ref>
)

// PlayerRef is one parsed slot notation. Parse once, resolve per kind.
type PlayerRef struct {
	Kind     PlayerRefKind
	Position int    // RefPosition
	Stage    int    // RefStageRank
	Rank     int    // RefStageRank
	GameRef  string // RefWinnerOf / RefLoserOf, e.g. "SF1", "G3"
}

var (
	positionRe   = regexp.MustCompile(`^P(\d+)$`)
	stageRankRe  = regexp.MustCompile(`^S(\d+)P(\d+)$`)
	gameResultRe = regexp.MustCompile(`^(Winner|Loser) of ([A-Z]+\d+)$`)
)

// ParsePlayerRef parses a template slot notation into its variant. Unknown
// notation is an error; the generator skips the affected game slot.
func ParsePlayerRef(notation string) (PlayerRef, error) {
	notation = strings.TrimSpace(notation)

	if m := positionRe.FindStringSubmatch(notation); m != nil {
		pos, _ := strconv.Atoi(m[1])
		return PlayerRef{Kind: RefPosition, Position: pos}, nil
	}
	if m := stageRankRe.FindStringSubmatch(notation); m != nil {
		stage, _ := strconv.Atoi(m[1])
		rank, _ := strconv.Atoi(m[2])
		return PlayerRef{Kind: RefStageRank, Stage: stage, Rank: rank}, nil
	}
	if m := gameResultRe.FindStringSubmatch(notation); m != nil {
		kind := RefWinnerOf
		if m[1] == "Loser" {
			kind = RefLoserOf
		}
		return PlayerRef{Kind: kind, GameRef: m[2]}, nil
	}
	return PlayerRef{}, fmt.Errorf("unknown player notation %q", notation)
}
