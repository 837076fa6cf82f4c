package engine

import (
	"errors"

	"github.com/okian/sandscore/internal/domain/glicko"
	"github.com/okian/sandscore/internal/domain/model"
)

// Sentinel error kinds for this package.
var (
	ErrInvalidConfig = errors.New("invalid engine config")
	ErrInvalidMatch  = model.ErrInvalidMatch
	ErrNonFinite     = glicko.ErrNonFinite
)
