package placeholders

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/previewops/ephemeral-env-platform/internal/lib"
	"github.com/previewops/ephemeral-env-platform/internal/placeholders/git"
)

// PlaceholderResolver produces the value a placeholder expands to.
type PlaceholderResolver func() (string, error)

var (
	placeholderRegExp = regexp.MustCompile(`{{\s*([^{}]+?)\s*}}`)
	modifierRegExp    = regexp.MustCompile(`(\w+)(\(([^()]*)\))?`)
)

type placeholderModifier struct {
	name string
	args []string
}

type modifierResolver func(string, []string) (string, error)

type placeholder struct {
	raw       string
	value     string
	modifiers []placeholderModifier
}

// Service expands {{ NAME | modifier(args) }} tokens in config values and
// manifest templates. Built-in names cover git and time information; callers
// supply environment- and service-scoped variables through extra resolvers.
type Service struct {
	gitRepoInfo git.RepositoryInfoService
}

// NewService creates a placeholder service. gitRepoInfo may be nil when no
// git checkout is available; GIT_* placeholders then resolve to an error.
func NewService(gitRepoInfo git.RepositoryInfoService) *Service {
	return &Service{
		gitRepoInfo: gitRepoInfo,
	}
}

// StaticResolvers wraps a plain variable map into resolver form, for passing
// scoped variables (PR_NUMBER, SERVICE_NAME, ...) into ResolvePlaceholders.
func StaticResolvers(vars map[string]string) map[string]PlaceholderResolver {
	resolvers := make(map[string]PlaceholderResolver, len(vars))
	for name, value := range vars {
		resolvers[name] = func() (string, error) { return value, nil }
	}
	return resolvers
}

func (s *Service) extractPlaceholders(value string) ([]placeholder, error) {
	matches := placeholderRegExp.FindAllStringSubmatch(value, -1)
	extracted := make([]placeholder, 0, len(matches))

	for _, match := range matches {
		raw := match[0]
		fullInnerValue := match[1]

		valueParts := strings.Split(fullInnerValue, "|")
		innerValue := strings.TrimSpace(valueParts[0])
		if innerValue == "" {
			return nil, fmt.Errorf("%w - empty placeholder: %s", lib.BadUserInputError, raw)
		}

		modifiers := make([]placeholderModifier, 0, len(valueParts)-1)
		for _, part := range valueParts[1:] {
			rawModifier := strings.TrimSpace(part)
			if rawModifier == "" {
				continue
			}
			modifierMatch := modifierRegExp.FindStringSubmatch(rawModifier)
			if modifierMatch == nil || modifierMatch[1] == "" {
				return nil, fmt.Errorf("%w - invalid modifier format in placeholder: %s", lib.BadUserInputError, raw)
			}

			var modifierArgs []string
			if modifierMatch[3] != "" {
				modifierArgs = strings.Split(modifierMatch[3], ",")
				for i := range modifierArgs {
					modifierArgs[i] = strings.TrimSpace(modifierArgs[i])
					if unquoted, err := strconv.Unquote(modifierArgs[i]); err == nil {
						modifierArgs[i] = unquoted
					}
				}
			}

			modifiers = append(modifiers, placeholderModifier{
				name: modifierMatch[1],
				args: modifierArgs,
			})
		}

		extracted = append(extracted, placeholder{
			raw:       raw,
			value:     innerValue,
			modifiers: modifiers,
		})
	}

	return extracted, nil
}

// ResolvePlaceholders expands every placeholder in value. Extra resolver maps
// are consulted in order after the built-ins; an unknown placeholder is an
// error rather than passing through to the cluster unresolved.
func (s *Service) ResolvePlaceholders(value string, extraResolvers ...map[string]PlaceholderResolver) (string, error) {
	extracted, err := s.extractPlaceholders(value)
	if err != nil {
		return "", fmt.Errorf("extracting placeholders: %w", err)
	}

	placeholderResolvers := map[string]PlaceholderResolver{
		"GIT_BRANCH":     s.resolveGitBranch,
		"GIT_COMMIT":     s.resolveGitCommit,
		"GIT_SHORT_SHA":  s.resolveGitShortSHA,
		"GIT_TAG":        s.resolveGitTag,
		"TIME_TIMESTAMP": resolveUnixTimestamp,
		"TIME_ISO8601":   resolveISO8601Timestamp,
		"TIME_DATE":      resolveDateStamp,
	}

	modifierResolvers := map[string]modifierResolver{
		"upper":       upperModifier,
		"lower":       lowerModifier,
		"trim":        trimModifier,
		"replace":     replaceModifier,
		"replace_all": replaceAllModifier,
		"default":     defaultModifier,
	}

	for _, ph := range extracted {
		resolver, ok := placeholderResolvers[ph.value]
		if !ok {
			for _, resolvers := range extraResolvers {
				if extraResolver, exists := resolvers[ph.value]; exists {
					resolver = extraResolver
					ok = true
					break
				}
			}
		}
		if !ok {
			return "", fmt.Errorf("no resolver found for placeholder: %s. %w", ph.raw, lib.BadUserInputError)
		}

		resolvedValue, err := resolver()
		if err != nil {
			return "", fmt.Errorf("resolving placeholder %s: %w", ph.raw, err)
		}

		for _, modifier := range ph.modifiers {
			modifierFunc, ok := modifierResolvers[modifier.name]
			if !ok {
				return "", fmt.Errorf("no resolver found for modifier: %s in placeholder: %s. %w", modifier.name, ph.raw, lib.BadUserInputError)
			}

			resolvedValue, err = modifierFunc(resolvedValue, modifier.args)
			if err != nil {
				return "", fmt.Errorf("applying modifier %s to placeholder %s: %w", modifier.name, ph.raw, err)
			}
		}

		value = strings.Replace(value, ph.raw, resolvedValue, 1)
	}

	return value, nil
}

func (s *Service) resolveGitBranch() (string, error) {
	if s.gitRepoInfo == nil {
		return "", fmt.Errorf("%w - GIT_BRANCH used outside a git checkout", lib.BadUserInputError)
	}
	branch, err := s.gitRepoInfo.CurrentBranch()
	if err != nil {
		return "", fmt.Errorf("getting current git branch: %w", err)
	}
	return branch, nil
}

func (s *Service) resolveGitCommit() (string, error) {
	if s.gitRepoInfo == nil {
		return "", fmt.Errorf("%w - GIT_COMMIT used outside a git checkout", lib.BadUserInputError)
	}
	commit, err := s.gitRepoInfo.CurrentCommit()
	if err != nil {
		return "", fmt.Errorf("getting current git commit: %w", err)
	}
	return commit.Hash.String(), nil
}

func (s *Service) resolveGitShortSHA() (string, error) {
	commit, err := s.resolveGitCommit()
	if err != nil {
		return "", err
	}
	if len(commit) > 7 {
		commit = commit[:7]
	}
	return commit, nil
}

func (s *Service) resolveGitTag() (string, error) {
	if s.gitRepoInfo == nil {
		return "", fmt.Errorf("%w - GIT_TAG used outside a git checkout", lib.BadUserInputError)
	}
	tag, err := s.gitRepoInfo.CurrentTag()
	if err != nil {
		return "", fmt.Errorf("getting current git tag: %w", err)
	}
	if tag == nil {
		return "", fmt.Errorf("no git tag found for current commit: %w", lib.BadUserInputError)
	}

	return tag.Name().Short(), nil
}
