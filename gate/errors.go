package gate

import "errors"

var errNoValidator = errors.New("gate: no session validator configured")
