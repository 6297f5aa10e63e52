package lib

import "errors"

// BadUserInputError marks failures caused by invalid user-provided input
// (flags, config file entries, placeholders) as opposed to platform faults.
var BadUserInputError = errors.New("bad user input")

// KubectlNotFoundError is returned when the kubectl binary cannot be located
// on PATH. The GitHub Action runner images ship it preinstalled, so hitting
// this usually means a self-hosted runner is missing tooling.
var KubectlNotFoundError = errors.New("kubectl binary not found in PATH")
