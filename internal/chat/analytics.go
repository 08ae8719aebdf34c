package chat

import (
	"sort"

	"github.com/capitalize-ai/livechat-engine/internal/model"
)

// ComputeAnalytics derives the analytics snapshot from the full conversation
// set. Nothing is maintained incrementally.
func ComputeAnalytics(convs []model.Conversation) model.Analytics {
	var (
		satSum, satN int
		frtSum       float64
		frtN         int
		durSum       float64
		durN         int
		histogram    [6]int
	)

	type agentAcc struct {
		handled     int
		ratingSum   int
		ratingCount int
	}
	agents := make(map[string]*agentAcc)

	for _, c := range convs {
		if c.CSAT != nil && c.CSAT.Rating >= 1 && c.CSAT.Rating <= 5 {
			histogram[c.CSAT.Rating]++
		}
		if c.Status != model.StatusClosed {
			continue
		}
		if c.CSAT != nil {
			satSum += c.CSAT.Rating
			satN++
		}
		if c.FirstResponseTime != nil {
			frtSum += *c.FirstResponseTime
			frtN++
		}
		if c.Duration != nil {
			durSum += *c.Duration
			durN++
		}
		if c.AssigneeID != "" {
			acc, ok := agents[c.AssigneeID]
			if !ok {
				acc = &agentAcc{}
				agents[c.AssigneeID] = acc
			}
			acc.handled++
			if c.CSAT != nil {
				acc.ratingSum += c.CSAT.Rating
				acc.ratingCount++
			}
		}
	}

	out := model.Analytics{
		TotalChats:               len(convs),
		AverageSatisfaction:      mean(float64(satSum), satN),
		AverageFirstResponseTime: mean(frtSum, frtN),
		AverageChatDuration:      mean(durSum, durN),
		SatisfactionDistribution: make([]model.RatingBucket, 0, 5),
		AgentPerformance:         make([]model.AgentPerformance, 0, len(agents)),
	}
	for star := 5; star >= 1; star-- {
		out.SatisfactionDistribution = append(out.SatisfactionDistribution, model.RatingBucket{Rating: star, Count: histogram[star]})
	}
	for id, acc := range agents {
		out.AgentPerformance = append(out.AgentPerformance, model.AgentPerformance{
			AgentID:             id,
			Handled:             acc.handled,
			AverageSatisfaction: mean(float64(acc.ratingSum), acc.ratingCount),
		})
	}
	sort.Slice(out.AgentPerformance, func(i, j int) bool {
		a, b := out.AgentPerformance[i], out.AgentPerformance[j]
		if a.Handled != b.Handled {
			return a.Handled > b.Handled
		}
		return a.AgentID < b.AgentID
	})
	return out
}

func mean(sum float64, n int) *float64 {
	if n == 0 {
		return nil
	}
	v := sum / float64(n)
	return &v
}

// Analytics recomputes the analytics snapshot.
func (e *Engine) Analytics() model.Analytics {
	return ComputeAnalytics(e.repo.Snapshot())
}
