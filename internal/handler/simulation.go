package handler

import (
	"fmt"
	"math/rand/v2"
	"net/http"

	"github.com/pavelanni/phishtrap/internal/model"
	"github.com/pavelanni/phishtrap/internal/quiz"
)

type simResponse struct {
	View    *quiz.EmailView `json:"view,omitempty"`
	Outcome *quiz.Outcome   `json:"outcome,omitempty"`
}

// withSimulation loads the caller's simulation, applies fn and saves it.
func (h *Handler) withSimulation(w http.ResponseWriter, r *http.Request, fn func(*quiz.Simulation) (*quiz.Outcome, error)) {
	email := model.IdentityFromContext(r.Context()).Email
	key := quiz.SimulationKey(email)

	sim, err := quiz.LoadSimulation(r.Context(), h.snapshots, key, h.bank, h.submitter(email))
	if err != nil {
		fail(w, err)
		return
	}
	out, err := fn(sim)
	if err != nil {
		fail(w, err)
		return
	}
	h.respondSimulation(w, r, key, sim, out)
}

func (h *Handler) respondSimulation(w http.ResponseWriter, r *http.Request, key string, sim *quiz.Simulation, out *quiz.Outcome) {
	if err := quiz.SaveSimulation(r.Context(), h.snapshots, key, sim); err != nil {
		fail(w, err)
		return
	}
	resp := simResponse{Outcome: out}
	if v, err := sim.Current(); err == nil {
		resp.View = &v
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) handleSimStart(w http.ResponseWriter, r *http.Request) {
	email := model.IdentityFromContext(r.Context()).Email
	var rng *rand.Rand
	if h.config.ShuffleEmails {
		rng = newRand()
	}
	sim := quiz.NewSimulation(h.bank, rng, h.submitter(email))
	h.respondSimulation(w, r, quiz.SimulationKey(email), sim, nil)
}

func (h *Handler) handleSimCurrent(w http.ResponseWriter, r *http.Request) {
	h.withSimulation(w, r, func(*quiz.Simulation) (*quiz.Outcome, error) { return nil, nil })
}

type guessRequest struct {
	Choice string `json:"choice"`
}

func (h *Handler) handleSimGuess(w http.ResponseWriter, r *http.Request) {
	var req guessRequest
	if err := decodeJSON(w, r, &req); err != nil {
		fail(w, err)
		return
	}
	var phishing bool
	switch req.Choice {
	case "phishing":
		phishing = true
	case "legit":
	default:
		fail(w, fmt.Errorf("%w: choice must be phishing or legit", model.ErrValidation))
		return
	}
	h.withSimulation(w, r, func(sim *quiz.Simulation) (*quiz.Outcome, error) {
		_, err := sim.Guess(phishing)
		return nil, err
	})
}

func (h *Handler) handleSimNext(w http.ResponseWriter, r *http.Request) {
	h.withSimulation(w, r, func(sim *quiz.Simulation) (*quiz.Outcome, error) {
		sim.Next()
		return nil, nil
	})
}

func (h *Handler) handleSimPrev(w http.ResponseWriter, r *http.Request) {
	h.withSimulation(w, r, func(sim *quiz.Simulation) (*quiz.Outcome, error) {
		sim.Prev()
		return nil, nil
	})
}

func (h *Handler) handleSimFinish(w http.ResponseWriter, r *http.Request) {
	h.withSimulation(w, r, func(sim *quiz.Simulation) (*quiz.Outcome, error) {
		out := sim.Finish(r.Context())
		return &out, nil
	})
}

func (h *Handler) handleSimReset(w http.ResponseWriter, r *http.Request) {
	h.withSimulation(w, r, func(sim *quiz.Simulation) (*quiz.Outcome, error) {
		sim.Reset()
		return nil, nil
	})
}
