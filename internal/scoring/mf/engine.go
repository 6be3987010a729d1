// Candid - Deliberation Platform Backend
// Copyright 2026 GovThePPL
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/GovThePPL/candid

// Package mf implements the per-conversation matrix factorization that
// assigns 2D latent coordinates to users and comments from their sparse
// vote matrix. Latent vectors are optionally pulled toward externally
// supplied clustering coordinates so the local model stays aligned with
// the external consensus system's opinion space.
package mf

import (
	"context"
	"errors"
	"math"
	"math/rand"
	"sync"

	"github.com/google/uuid"

	"github.com/GovThePPL/candid/internal/models"
)

// ErrInsufficientData is returned by Train when the conversation has too
// few distinct voters or too few votes to produce a meaningful model.
// Callers treat it as a normal skip outcome, not a failure.
var ErrInsufficientData = errors.New("mf: insufficient data to train")

// LatentDim is the dimension of the latent factor vectors. It is fixed
// at 2 so factors map directly onto the 2D coordinate system used by
// the external clustering.
const LatentDim = 2

// Config contains hyperparameters for gradient descent training.
type Config struct {
	// LearningRate is the gradient descent step size.
	// Typical range: 0.01-0.05.
	LearningRate float64

	// Regularization is the L2 regularization parameter applied to all
	// latent vectors. Typical range: 0.001-0.1.
	Regularization float64

	// PullRegularization weights the penalty pulling user vectors toward
	// their externally supplied coordinates. Zero disables the pull term.
	PullRegularization float64

	// MaxEpochs bounds the number of full passes over the vote set.
	MaxEpochs int

	// ConvergenceTol stops training early when the loss improves by less
	// than this amount between epochs.
	ConvergenceTol float64

	// MinVoters is the minimum number of distinct voters required to train.
	MinVoters int

	// MinVotes is the minimum number of votes required to train.
	MinVotes int

	// Seed seeds the random initialization. When zero, initialization is
	// non-deterministic.
	Seed int64
}

// DefaultConfig returns default training hyperparameters.
func DefaultConfig() Config {
	return Config{
		LearningRate:       0.02,
		Regularization:     0.01,
		PullRegularization: 0.1,
		MaxEpochs:          500,
		ConvergenceTol:     1e-5,
		MinVoters:          7,
		MinVotes:           20,
	}
}

// Result holds the fitted latent vectors from a completed training run,
// keyed by the original user and comment IDs.
type Result struct {
	UserCoords    map[uuid.UUID]models.Coords
	CommentCoords map[uuid.UUID]models.Coords
	NumUsers      int
	NumComments   int
	NumVotes      int
	Epochs        int
	FinalLoss     float64
}

// Engine fits 2D latent vectors per user and per comment by minimizing
//
//	sum_{u,c} (vote_uc - f_u . f_c)^2
//	  + lambda * (||f_u||^2 + ||f_c||^2)
//	  + lambda_polis * sum_u ||f_u - pull_u||^2
//
// via batch gradient descent. The pull term is applied only for users
// with externally supplied coordinates.
type Engine struct {
	config Config
	mu     sync.Mutex

	// U is the user factor matrix (numUsers x LatentDim)
	U [][]float64

	// C is the comment factor matrix (numComments x LatentDim)
	C [][]float64

	// userIndex maps user ID to matrix row
	userIndex map[uuid.UUID]int

	// commentIndex maps comment ID to matrix row
	commentIndex map[uuid.UUID]int

	// indexToUser maps matrix row to user ID
	indexToUser []uuid.UUID

	// indexToComment maps matrix row to comment ID
	indexToComment []uuid.UUID
}

// NewEngine creates an engine with the given configuration. Non-positive
// hyperparameters fall back to defaults; a zero PullRegularization is
// respected as "no pull".
func NewEngine(cfg Config) *Engine {
	def := DefaultConfig()
	if cfg.LearningRate <= 0 {
		cfg.LearningRate = def.LearningRate
	}
	if cfg.Regularization <= 0 {
		cfg.Regularization = def.Regularization
	}
	if cfg.PullRegularization < 0 {
		cfg.PullRegularization = 0
	}
	if cfg.MaxEpochs <= 0 {
		cfg.MaxEpochs = def.MaxEpochs
	}
	if cfg.ConvergenceTol <= 0 {
		cfg.ConvergenceTol = def.ConvergenceTol
	}
	if cfg.MinVoters <= 0 {
		cfg.MinVoters = def.MinVoters
	}
	if cfg.MinVotes <= 0 {
		cfg.MinVotes = def.MinVotes
	}

	return &Engine{
		config:       cfg,
		userIndex:    make(map[uuid.UUID]int),
		commentIndex: make(map[uuid.UUID]int),
	}
}

// Train fits the model from vote triples and optional per-user pull
// coordinates. It returns ErrInsufficientData when the preconditions on
// voter and vote counts are not met.
//
//nolint:gocyclo // gradient descent training is inherently sequential and branchy
func (e *Engine) Train(ctx context.Context, votes []models.VoteTriple, pullCoords map[uuid.UUID]models.Coords) (*Result, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	// Build user and comment indices
	e.userIndex = make(map[uuid.UUID]int)
	e.commentIndex = make(map[uuid.UUID]int)
	e.indexToUser = nil
	e.indexToComment = nil

	for _, v := range votes {
		if _, ok := e.userIndex[v.UserID]; !ok {
			e.userIndex[v.UserID] = len(e.indexToUser)
			e.indexToUser = append(e.indexToUser, v.UserID)
		}
		if _, ok := e.commentIndex[v.CommentID]; !ok {
			e.commentIndex[v.CommentID] = len(e.indexToComment)
			e.indexToComment = append(e.indexToComment, v.CommentID)
		}
	}

	numUsers := len(e.indexToUser)
	numComments := len(e.indexToComment)

	if numUsers < e.config.MinVoters || len(votes) < e.config.MinVotes {
		return nil, ErrInsufficientData
	}

	// Resolve pull targets to matrix rows once up front.
	pulls := make([][]float64, numUsers)
	for id, coords := range pullCoords {
		if ui, ok := e.userIndex[id]; ok {
			pulls[ui] = []float64{coords.X, coords.Y}
		}
	}

	e.initFactors(numUsers, numComments)

	lr := e.config.LearningRate
	lambda := e.config.Regularization
	lambdaPull := e.config.PullRegularization

	prevLoss := math.Inf(1)
	epochs := 0
	var loss float64

	for epoch := 0; epoch < e.config.MaxEpochs; epoch++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		// Accumulate gradients over the full vote set, then step.
		gradU := make([][]float64, numUsers)
		for u := range gradU {
			gradU[u] = make([]float64, LatentDim)
		}
		gradC := make([][]float64, numComments)
		for c := range gradC {
			gradC[c] = make([]float64, LatentDim)
		}

		loss = 0
		for _, v := range votes {
			ui := e.userIndex[v.UserID]
			ci := e.commentIndex[v.CommentID]
			fu := e.U[ui]
			fc := e.C[ci]

			pred := fu[0]*fc[0] + fu[1]*fc[1]
			resid := v.Value - pred
			loss += resid * resid

			for f := 0; f < LatentDim; f++ {
				gradU[ui][f] += -2 * resid * fc[f]
				gradC[ci][f] += -2 * resid * fu[f]
			}
		}

		for u := 0; u < numUsers; u++ {
			for f := 0; f < LatentDim; f++ {
				gradU[u][f] += 2 * lambda * e.U[u][f]
				loss += lambda * e.U[u][f] * e.U[u][f]
			}
			if lambdaPull > 0 && pulls[u] != nil {
				for f := 0; f < LatentDim; f++ {
					diff := e.U[u][f] - pulls[u][f]
					gradU[u][f] += 2 * lambdaPull * diff
					loss += lambdaPull * diff * diff
				}
			}
		}
		for c := 0; c < numComments; c++ {
			for f := 0; f < LatentDim; f++ {
				gradC[c][f] += 2 * lambda * e.C[c][f]
				loss += lambda * e.C[c][f] * e.C[c][f]
			}
		}

		for u := 0; u < numUsers; u++ {
			for f := 0; f < LatentDim; f++ {
				e.U[u][f] -= lr * gradU[u][f]
			}
		}
		for c := 0; c < numComments; c++ {
			for f := 0; f < LatentDim; f++ {
				e.C[c][f] -= lr * gradC[c][f]
			}
		}

		epochs = epoch + 1
		if prevLoss-loss < e.config.ConvergenceTol {
			break
		}
		prevLoss = loss
	}

	res := &Result{
		UserCoords:    make(map[uuid.UUID]models.Coords, numUsers),
		CommentCoords: make(map[uuid.UUID]models.Coords, numComments),
		NumUsers:      numUsers,
		NumComments:   numComments,
		NumVotes:      len(votes),
		Epochs:        epochs,
		FinalLoss:     loss,
	}
	for u, id := range e.indexToUser {
		res.UserCoords[id] = models.Coords{X: e.U[u][0], Y: e.U[u][1]}
	}
	for c, id := range e.indexToComment {
		res.CommentCoords[id] = models.Coords{X: e.C[c][0], Y: e.C[c][1]}
	}
	return res, nil
}

// initFactors initializes the factor matrices with small random values.
// A fixed Seed makes the initialization, and therefore the whole batch
// descent, deterministic.
func (e *Engine) initFactors(numUsers, numComments int) {
	var rng *rand.Rand
	if e.config.Seed != 0 {
		rng = rand.New(rand.NewSource(e.config.Seed))
	} else {
		rng = rand.New(rand.NewSource(rand.Int63()))
	}

	e.U = make([][]float64, numUsers)
	for u := 0; u < numUsers; u++ {
		e.U[u] = make([]float64, LatentDim)
		for f := 0; f < LatentDim; f++ {
			e.U[u][f] = 0.1 * (rng.Float64() - 0.5)
		}
	}

	e.C = make([][]float64, numComments)
	for c := 0; c < numComments; c++ {
		e.C[c] = make([]float64, LatentDim)
		for f := 0; f < LatentDim; f++ {
			e.C[c][f] = 0.1 * (rng.Float64() - 0.5)
		}
	}
}
