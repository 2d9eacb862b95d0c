// Package planner produces day-by-day travel itineraries in two steps: a
// researcher derives search keywords and collects real places from the map
// search API, then a planner writes the itinerary from those results.
package planner

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/openai/openai-go"
	"github.com/tidwall/gjson"
	"golang.org/x/sync/errgroup"

	"tripcal/internal/amap"
	appLog "tripcal/internal/log"
	"tripcal/internal/model"
)

const (
	DefaultModel   = "gpt-4o"
	DefaultMaxDays = 30

	maxKeywords = 3
)

var (
	// ErrInvalidRequest marks requests rejected before any upstream call.
	ErrInvalidRequest = errors.New("planner: invalid request")
	// ErrEmptyCompletion is returned when the model answers with no choices.
	ErrEmptyCompletion = errors.New("planner: empty completion")
)

// Searcher looks up places for a keyword in a city.
type Searcher interface {
	Search(ctx context.Context, query, city string) ([]model.Place, error)
}

// Request describes one planning run.
type Request struct {
	Destination string `json:"destination"`
	Days        int    `json:"days"`
}

// Options configures a Planner.
type Options struct {
	Model   string
	MaxDays int
	Now     func() time.Time
}

// Planner runs the research and planning steps.
type Planner struct {
	chat    ChatClient
	search  Searcher
	model   string
	maxDays int
	now     func() time.Time
}

// New creates a Planner.
func New(chat ChatClient, search Searcher, opts Options) *Planner {
	if opts.Model == "" {
		opts.Model = DefaultModel
	}
	if opts.MaxDays <= 0 {
		opts.MaxDays = DefaultMaxDays
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Planner{
		chat:    chat,
		search:  search,
		model:   opts.Model,
		maxDays: opts.MaxDays,
		now:     opts.Now,
	}
}

// MaxDays is the longest trip the planner accepts.
func (p *Planner) MaxDays() int { return p.maxDays }

// Plan researches the destination and returns the generated itinerary.
func (p *Planner) Plan(ctx context.Context, req Request) (model.Itinerary, error) {
	req.Destination = strings.TrimSpace(req.Destination)
	if req.Destination == "" {
		return model.Itinerary{}, fmt.Errorf("%w: destination is required", ErrInvalidRequest)
	}
	if req.Days < 1 || req.Days > p.maxDays {
		return model.Itinerary{}, fmt.Errorf("%w: days must be between 1 and %d", ErrInvalidRequest, p.maxDays)
	}

	appLog.Info("planner research start", "destination", req.Destination, "days", req.Days)

	keywords, err := p.keywords(ctx, req)
	if err != nil {
		return model.Itinerary{}, err
	}
	research := p.research(ctx, req.Destination, keywords)

	appLog.Info("planner research done", "destination", req.Destination, "keywords", strings.Join(keywords, ","))

	plan, err := p.complete(ctx, openai.ChatCompletionNewParams{
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(plannerInstructions),
			openai.UserMessage(plannerPrompt(req, research)),
		},
		Model: openai.ChatModel(p.model),
	})
	if err != nil {
		return model.Itinerary{}, err
	}

	return model.Itinerary{
		Destination: req.Destination,
		Days:        req.Days,
		Research:    research,
		Plan:        plan,
		GeneratedAt: p.now(),
	}, nil
}

// keywords asks the model for search keywords, falling back to a fixed set
// when it returns none.
func (p *Planner) keywords(ctx context.Context, req Request) ([]string, error) {
	content, err := p.complete(ctx, openai.ChatCompletionNewParams{
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(researcherInstructions),
			openai.UserMessage(fmt.Sprintf("Destination: %s\nDays: %d", req.Destination, req.Days)),
		},
		Model: openai.ChatModel(p.model),
		ResponseFormat: openai.ChatCompletionNewParamsResponseFormatUnion{
			OfJSONObject: &openai.ResponseFormatJSONObjectParam{},
		},
	})
	if err != nil {
		return nil, err
	}

	var out []string
	for _, k := range gjson.Get(content, "keywords").Array() {
		if s := strings.TrimSpace(k.String()); s != "" {
			out = append(out, s)
		}
		if len(out) == maxKeywords {
			break
		}
	}
	if len(out) == 0 {
		appLog.Debug("planner: model returned no keywords, using defaults", "content", content)
		out = []string{req.Destination + "景点", req.Destination + "美食", req.Destination + "酒店"}
	}
	return out, nil
}

// research runs one search per keyword concurrently. A failed search is
// reported inline in its section instead of aborting the run.
func (p *Planner) research(ctx context.Context, city string, keywords []string) string {
	sections := make([]string, len(keywords))

	var g errgroup.Group
	for i, kw := range keywords {
		g.Go(func() error {
			places, err := p.search.Search(ctx, kw, city)
			if err != nil {
				appLog.Error("planner search failed", err, "keywords", kw, "city", city)
				sections[i] = fmt.Sprintf("## %s\nsearch %q failed: %v", kw, kw, err)
				return nil
			}
			sections[i] = "## " + kw + "\n" + amap.FormatPlaces(places)
			return nil
		})
	}
	_ = g.Wait()

	return strings.Join(sections, "\n\n")
}

func (p *Planner) complete(ctx context.Context, params openai.ChatCompletionNewParams) (string, error) {
	completion, err := p.chat.CreateChatCompletion(ctx, params)
	if err != nil {
		return "", err
	}
	if completion == nil || len(completion.Choices) == 0 {
		return "", ErrEmptyCompletion
	}
	return completion.Choices[0].Message.Content, nil
}

const researcherInstructions = `You are a world-class travel researcher.
Given a destination and the number of days, produce exactly 3 map search
keywords covering attractions, food and accommodation.
Answer with a JSON object: {"keywords": ["...", "...", "..."]}.`

const plannerInstructions = `You are a senior travel planner.
Write a day-by-day itinerary with activities, food, accommodation and route
suggestions based only on the research results. Do not invent places that
are not in the research results.
Start each day with a heading of the form "Day N:" (N starting at 1) so the
plan can be exported to a calendar.`

func plannerPrompt(req Request, research string) string {
	return fmt.Sprintf("Destination: %s\nDays: %d\n\nResearch Results:\n%s\n\nWrite the detailed itinerary.",
		req.Destination, req.Days, research)
}
