// Copyright 2025 The toolbridge authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package bedrock

import (
	"encoding/json"
	"fmt"
	"strings"

	tberrors "toolbridge/pkg/errors"
)

// anthropicVersion is the fixed API version the runtime expects in
// anthropic-family request bodies.
const anthropicVersion = "bedrock-2023-05-31"

// family identifies the request/response dialect a model speaks.
type family string

const (
	familyAnthropic family = "anthropic"
	familyTitan     family = "amazon"
	familyLlama     family = "meta"
	familyCohere    family = "cohere"
	familyMistral   family = "mistral"
	familyGeneric   family = "generic"
)

// regionPrefixes are cross-region inference profile prefixes stripped
// before the vendor segment is read.
var regionPrefixes = []string{"us.", "eu.", "apac."}

// familyFor maps a model ID to its payload dialect. Unknown vendors fall
// back to a generic prompt body.
func familyFor(modelID string) family {
	id := modelID
	for _, p := range regionPrefixes {
		if strings.HasPrefix(id, p) {
			id = strings.TrimPrefix(id, p)
			break
		}
	}

	vendor, _, found := strings.Cut(id, ".")
	if !found {
		return familyGeneric
	}

	switch vendor {
	case "anthropic":
		return familyAnthropic
	case "amazon":
		return familyTitan
	case "meta":
		return familyLlama
	case "cohere":
		return familyCohere
	case "mistral":
		return familyMistral
	default:
		return familyGeneric
	}
}

// buildBody constructs the invoke request body for the model's dialect.
// thinkingBudget enables extended thinking on anthropic models; the other
// dialects have no equivalent and ignore it.
func buildBody(modelID, system, prompt string, maxTokens, thinkingBudget int, temperature float64) ([]byte, error) {
	var body interface{}

	switch familyFor(modelID) {
	case familyAnthropic:
		b := map[string]interface{}{
			"anthropic_version": anthropicVersion,
			"max_tokens":        maxTokens,
			"temperature":       temperature,
			"messages": []map[string]string{
				{"role": "user", "content": prompt},
			},
		}
		if system != "" {
			b["system"] = system
		}
		if thinkingBudget > 0 {
			b["thinking"] = map[string]interface{}{
				"type":          "enabled",
				"budget_tokens": thinkingBudget,
			}
		}
		body = b

	case familyTitan:
		body = map[string]interface{}{
			"inputText": joinSystem(system, prompt),
			"textGenerationConfig": map[string]interface{}{
				"maxTokenCount": maxTokens,
				"temperature":   temperature,
			},
		}

	case familyLlama:
		body = map[string]interface{}{
			"prompt":      joinSystem(system, prompt),
			"max_gen_len": maxTokens,
			"temperature": temperature,
		}

	case familyCohere:
		b := map[string]interface{}{
			"message":     prompt,
			"max_tokens":  maxTokens,
			"temperature": temperature,
		}
		if system != "" {
			b["preamble"] = system
		}
		body = b

	case familyMistral:
		body = map[string]interface{}{
			"prompt":      fmt.Sprintf("<s>[INST] %s [/INST]", joinSystem(system, prompt)),
			"max_tokens":  maxTokens,
			"temperature": temperature,
		}

	default:
		body = map[string]interface{}{
			"prompt":      joinSystem(system, prompt),
			"max_tokens":  maxTokens,
			"temperature": temperature,
		}
	}

	return json.Marshal(body)
}

// joinSystem prepends the system prompt for dialects without a separate
// system field.
func joinSystem(system, prompt string) string {
	if system == "" {
		return prompt
	}
	return system + "\n\n" + prompt
}

// parseResponse extracts the completion text and reported token counts
// from an invoke response body. Counts are zero when the dialect does not
// report them.
func parseResponse(modelID string, raw []byte) (string, Usage, error) {
	switch familyFor(modelID) {
	case familyAnthropic:
		var resp struct {
			Content []struct {
				Type string `json:"type"`
				Text string `json:"text"`
			} `json:"content"`
			Usage struct {
				InputTokens  int `json:"input_tokens"`
				OutputTokens int `json:"output_tokens"`
			} `json:"usage"`
		}
		if err := json.Unmarshal(raw, &resp); err != nil {
			return "", Usage{}, parseError(err)
		}
		var text strings.Builder
		for _, c := range resp.Content {
			if c.Type == "text" {
				text.WriteString(c.Text)
			}
		}
		return text.String(), Usage{InputTokens: resp.Usage.InputTokens, OutputTokens: resp.Usage.OutputTokens}, nil

	case familyTitan:
		var resp struct {
			InputTextTokenCount int `json:"inputTextTokenCount"`
			Results             []struct {
				OutputText string `json:"outputText"`
				TokenCount int    `json:"tokenCount"`
			} `json:"results"`
		}
		if err := json.Unmarshal(raw, &resp); err != nil {
			return "", Usage{}, parseError(err)
		}
		if len(resp.Results) == 0 {
			return "", Usage{}, tberrors.New(tberrors.ErrorTypeProtocol, "response contained no results")
		}
		return resp.Results[0].OutputText, Usage{
			InputTokens:  resp.InputTextTokenCount,
			OutputTokens: resp.Results[0].TokenCount,
		}, nil

	case familyLlama:
		var resp struct {
			Generation           string `json:"generation"`
			PromptTokenCount     int    `json:"prompt_token_count"`
			GenerationTokenCount int    `json:"generation_token_count"`
		}
		if err := json.Unmarshal(raw, &resp); err != nil {
			return "", Usage{}, parseError(err)
		}
		return resp.Generation, Usage{
			InputTokens:  resp.PromptTokenCount,
			OutputTokens: resp.GenerationTokenCount,
		}, nil

	case familyCohere:
		var resp struct {
			Text string `json:"text"`
		}
		if err := json.Unmarshal(raw, &resp); err != nil {
			return "", Usage{}, parseError(err)
		}
		return resp.Text, Usage{}, nil

	case familyMistral:
		var resp struct {
			Outputs []struct {
				Text string `json:"text"`
			} `json:"outputs"`
		}
		if err := json.Unmarshal(raw, &resp); err != nil {
			return "", Usage{}, parseError(err)
		}
		if len(resp.Outputs) == 0 {
			return "", Usage{}, tberrors.New(tberrors.ErrorTypeProtocol, "response contained no outputs")
		}
		return resp.Outputs[0].Text, Usage{}, nil

	default:
		// Best effort for unrecognized vendors: try the common text fields.
		var resp struct {
			Completion string `json:"completion"`
			Text       string `json:"text"`
			Generation string `json:"generation"`
		}
		if err := json.Unmarshal(raw, &resp); err != nil {
			return "", Usage{}, parseError(err)
		}
		for _, s := range []string{resp.Completion, resp.Text, resp.Generation} {
			if s != "" {
				return s, Usage{}, nil
			}
		}
		return "", Usage{}, tberrors.New(tberrors.ErrorTypeProtocol, "could not locate completion text in response")
	}
}

func parseError(err error) error {
	return tberrors.Wrap(tberrors.ErrorTypeProtocol, "failed to parse model response", err)
}
