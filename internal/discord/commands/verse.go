// Package commands implements the verse slash commands: /scan, /meter,
// /rhymes and /sonnet.
package commands

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/bwmarrin/discordgo"

	"github.com/bedwards/sonnet/internal/archive"
	"github.com/bedwards/sonnet/internal/discord"
	"github.com/bedwards/sonnet/internal/generator"
	"github.com/bedwards/sonnet/internal/observe"
	"github.com/bedwards/sonnet/internal/scansion"
)

const (
	// commandTimeout bounds one command's work.
	commandTimeout = 10 * time.Second
	// maxRhymes caps the words listed by /rhymes.
	maxRhymes = 60
	// surface labels tool-call metrics.
	surface = "discord"
)

// schemeLetters labels each sonnet line with its rhyme letter.
const schemeLetters = "ABABCDCDEFEFGG"

// Config holds dependencies for creating VerseCommands.
type Config struct {
	Pipeline  *scansion.Pipeline
	Generator *generator.Generator
	Archive   archive.Store    // optional; /sonnet results are archived when set
	Metrics   *observe.Metrics // optional
}

// VerseCommands handles the verse slash commands.
type VerseCommands struct {
	pipeline  *scansion.Pipeline
	generator *generator.Generator
	archive   archive.Store
	metrics   *observe.Metrics
}

// New creates a VerseCommands handler.
func New(cfg Config) *VerseCommands {
	return &VerseCommands{
		pipeline:  cfg.Pipeline,
		generator: cfg.Generator,
		archive:   cfg.Archive,
		metrics:   cfg.Metrics,
	}
}

// Register registers every command and the /rhymes word autocomplete.
func (vc *VerseCommands) Register(router *discord.CommandRouter) {
	for _, def := range vc.Definitions() {
		var h discord.HandlerFunc
		switch def.Name {
		case "scan":
			h = vc.handleScan
		case "meter":
			h = vc.handleMeter
		case "rhymes":
			h = vc.handleRhymes
		case "sonnet":
			h = vc.handleSonnet
		}
		router.RegisterCommand(def, h)
	}
	router.RegisterAutocomplete("rhymes", vc.autocompleteWord)
}

// Definitions returns the slash command definitions.
func (vc *VerseCommands) Definitions() []*discordgo.ApplicationCommand {
	return []*discordgo.ApplicationCommand{
		{
			Name:        "scan",
			Description: "Scan up to 14 lines of verse for meter and rhyme",
			Options: []*discordgo.ApplicationCommandOption{
				{
					Type:        discordgo.ApplicationCommandOptionString,
					Name:        "text",
					Description: "Lines separated by / or new lines",
					Required:    true,
				},
			},
		},
		{
			Name:        "meter",
			Description: "Mark the stresses of one line",
			Options: []*discordgo.ApplicationCommandOption{
				{
					Type:        discordgo.ApplicationCommandOptionString,
					Name:        "line",
					Description: "The line to scan",
					Required:    true,
				},
			},
		},
		{
			Name:        "rhymes",
			Description: "List words that rhyme",
			Options: []*discordgo.ApplicationCommandOption{
				{
					Type:         discordgo.ApplicationCommandOptionString,
					Name:         "word",
					Description:  "The word to rhyme",
					Required:     true,
					Autocomplete: true,
				},
				{
					Type:        discordgo.ApplicationCommandOptionBoolean,
					Name:        "strict",
					Description: "Only two-syllable iambs",
				},
			},
		},
		{
			Name:        "sonnet",
			Description: "Draw fourteen end words in the ABAB CDCD EFEF GG scheme",
		},
	}
}

func (vc *VerseCommands) record(ctx context.Context, tool, status string) {
	if vc.metrics != nil {
		vc.metrics.RecordToolCall(ctx, surface, tool, status)
	}
}

// stringOption returns the named string option, or "" when it is absent.
func stringOption(i *discordgo.InteractionCreate, name string) string {
	if o, ok := discord.Options(i)[name]; ok {
		return o.StringValue()
	}
	return ""
}

// SplitVerse splits slash-command text into lines on "/" and new lines,
// dropping blank lines.
func SplitVerse(text string) []string {
	fields := strings.FieldsFunc(text, func(r rune) bool {
		return r == '/' || r == '\n'
	})
	out := make([]string, 0, len(fields))
	for _, f := range fields {
		if f = strings.TrimSpace(f); f != "" {
			out = append(out, f)
		}
	}
	return out
}

func (vc *VerseCommands) handleScan(s discord.Responder, i *discordgo.InteractionCreate) {
	ctx, cancel := context.WithTimeout(context.Background(), commandTimeout)
	defer cancel()

	lines := SplitVerse(stringOption(i, "text"))
	if len(lines) == 0 {
		vc.record(ctx, "scan", "error")
		discord.RespondEphemeral(s, i, "Give me at least one line.")
		return
	}

	rep, err := vc.pipeline.Scan(ctx, lines)
	if err != nil {
		vc.record(ctx, "scan", "error")
		if errors.Is(err, scansion.ErrTooManyLines) {
			discord.RespondEphemeral(s, i, fmt.Sprintf("A sonnet block is at most %d lines.", vc.pipeline.MaxLines()))
			return
		}
		discord.RespondError(s, i, err)
		return
	}
	vc.record(ctx, "scan", "ok")
	discord.Respond(s, i, FormatReport(rep))
}

func (vc *VerseCommands) handleMeter(s discord.Responder, i *discordgo.InteractionCreate) {
	ctx, cancel := context.WithTimeout(context.Background(), commandTimeout)
	defer cancel()

	line := vc.pipeline.ScanLine(ctx, stringOption(i, "line"))
	vc.record(ctx, "meter", "ok")
	discord.Respond(s, i, FormatLine(line))
}

func (vc *VerseCommands) handleRhymes(s discord.Responder, i *discordgo.InteractionCreate) {
	ctx, cancel := context.WithTimeout(context.Background(), commandTimeout)
	defer cancel()

	word := strings.ToLower(strings.TrimSpace(stringOption(i, "word")))
	strict := false
	if o, ok := discord.Options(i)["strict"]; ok {
		strict = o.BoolValue()
	}

	m := vc.pipeline.Matcher()
	seq := m.RhymingWords(word)
	if strict {
		seq = m.StrictRhymes(word)
	}
	var words []string
	for w := range seq {
		words = append(words, w)
		if len(words) == maxRhymes {
			break
		}
	}
	vc.record(ctx, "rhymes", "ok")
	discord.Respond(s, i, FormatRhymes(word, strict, words))
}

func (vc *VerseCommands) handleSonnet(s discord.Responder, i *discordgo.InteractionCreate) {
	ctx, cancel := context.WithTimeout(context.Background(), commandTimeout)
	defer cancel()

	words, err := vc.generator.EndWords(ctx)
	if err != nil {
		vc.record(ctx, "sonnet", "error")
		if errors.Is(err, generator.ErrGenerationExhausted) {
			discord.RespondEphemeral(s, i, "Couldn't satisfy the rhyme scheme this time. Try again.")
			return
		}
		discord.RespondError(s, i, err)
		return
	}
	vc.record(ctx, "sonnet", "ok")

	id := ""
	if vc.archive != nil {
		rec := &archive.Record{Kind: archive.KindEndWords, EndWords: words[:]}
		if err := vc.archive.Save(ctx, rec); err != nil {
			observe.Logger(ctx).Warn("discord: archive end words", "err", err)
		} else {
			id = rec.ID
		}
	}
	discord.Respond(s, i, FormatEndWords(words, id))
}

// autocompleteWord offers completions for the focused /rhymes word option.
func (vc *VerseCommands) autocompleteWord(s discord.Responder, i *discordgo.InteractionCreate) {
	prefix := ""
	for _, o := range i.ApplicationCommandData().Options {
		if o.Focused {
			prefix = strings.ToLower(o.StringValue())
		}
	}
	discord.RespondChoices(s, i, vc.generator.Complete(prefix, ""))
}

// FormatLine renders one scanned line with its stress marks.
func FormatLine(l scansion.Line) string {
	var b strings.Builder
	b.WriteString("```\n")
	fmt.Fprintf(&b, "%s\n%s\n", l.Text, l.Rendered)
	b.WriteString("```\n")
	if l.Meter.IsIambicPentameter {
		b.WriteString("Iambic pentameter.")
	} else {
		fmt.Fprintf(&b, "Stresses `%s` (%d syllables).", l.Meter.Digits, l.Meter.SyllableCount)
	}
	return b.String()
}

// FormatReport renders a scansion report: numbered lines with their marks,
// then rhyme mismatches and unknown words. Line numbers are 1-based.
func FormatReport(rep *scansion.Report) string {
	var b strings.Builder
	b.WriteString("```\n")
	for _, l := range rep.Lines {
		fmt.Fprintf(&b, "%2d  %s\n    %s\n", l.Index+1, l.Text, l.Rendered)
	}
	b.WriteString("```\n")
	fmt.Fprintf(&b, "Pentameter lines: %d/%d\n", rep.Pentameter, len(rep.Lines))

	if len(rep.Mismatches) == 0 {
		b.WriteString("Rhyme scheme: ok\n")
	} else {
		b.WriteString("Rhyme mismatches:\n")
		for _, mm := range rep.Mismatches {
			fmt.Fprintf(&b, "- lines %d & %d: %s / %s\n", mm.First+1, mm.Second+1, mm.FirstWord, mm.SecondWord)
		}
	}
	if len(rep.Unknown) > 0 {
		fmt.Fprintf(&b, "Unknown words: %s\n", strings.Join(rep.Unknown, ", "))
	}
	return strings.TrimRight(b.String(), "\n")
}

// FormatRhymes renders a /rhymes answer.
func FormatRhymes(word string, strict bool, words []string) string {
	kind := "Rhymes"
	if strict {
		kind = "Strict rhymes"
	}
	if len(words) == 0 {
		return fmt.Sprintf("%s for **%s**: none found.", kind, word)
	}
	return fmt.Sprintf("%s for **%s**: %s", kind, word, strings.Join(words, ", "))
}

// FormatEndWords renders fourteen end words in quatrains with their
// scheme letters.
func FormatEndWords(words generator.EndWords, id string) string {
	var b strings.Builder
	b.WriteString("```\n")
	for n, w := range words {
		if n > 0 && n%4 == 0 {
			b.WriteByte('\n')
		}
		fmt.Fprintf(&b, "%2d %c  %s\n", n+1, schemeLetters[n], w)
	}
	b.WriteString("```\n")
	if id != "" {
		fmt.Fprintf(&b, "Saved as `%s`.", id)
	}
	return strings.TrimRight(b.String(), "\n")
}
