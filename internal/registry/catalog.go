package registry

import "github.com/xiaot623/dualchat/internal/domain"

var builtin = []domain.ProviderDescriptor{
	{
		ID:          "openai",
		DisplayName: "OpenAI",
		Models: []domain.ModelDescriptor{
			{ID: "gpt-4.1-2025-04-14", DisplayName: "GPT-4.1 (Latest)"},
			{ID: "o3-2025-04-16", DisplayName: "o3 (Reasoning)"},
			{ID: "o4-mini-2025-04-16", DisplayName: "o4 Mini (Fast Reasoning)"},
			{ID: "gpt-4.1-mini-2025-04-14", DisplayName: "GPT-4.1 Mini"},
			{ID: "gpt-4o", DisplayName: "GPT-4o"},
			{ID: "gpt-4o-mini", DisplayName: "GPT-4o Mini"},
			{ID: "gpt-3.5-turbo", DisplayName: "GPT-3.5 Turbo"},
		},
	},
	{
		ID:          "anthropic",
		DisplayName: "Anthropic",
		Models: []domain.ModelDescriptor{
			{ID: "claude-opus-4-20250514", DisplayName: "Claude Opus 4 (Latest)"},
			{ID: "claude-sonnet-4-20250514", DisplayName: "Claude Sonnet 4"},
			{ID: "claude-3-5-haiku-20241022", DisplayName: "Claude 3.5 Haiku (Fast)"},
			{ID: "claude-3-7-sonnet-20250219", DisplayName: "Claude 3.7 Sonnet"},
			{ID: "claude-3-5-sonnet-20241022", DisplayName: "Claude 3.5 Sonnet"},
			{ID: "claude-3-opus-20240229", DisplayName: "Claude 3 Opus"},
			{ID: "claude-3-haiku-20240307", DisplayName: "Claude 3 Haiku"},
		},
	},
	{
		ID:          "xai",
		DisplayName: "xAI",
		Models: []domain.ModelDescriptor{
			{ID: "grok-beta", DisplayName: "Grok Beta"},
			{ID: "grok-2", DisplayName: "Grok 2"},
		},
	},
	{
		ID:          "google",
		DisplayName: "Google (Gemini)",
		Models: []domain.ModelDescriptor{
			{ID: "gemini-2.0-flash-exp", DisplayName: "Gemini 2.0 Flash (Experimental)"},
			{ID: "gemini-1.5-pro-002", DisplayName: "Gemini 1.5 Pro (Latest)"},
			{ID: "gemini-1.5-flash-002", DisplayName: "Gemini 1.5 Flash (Latest)"},
			{ID: "gemini-1.5-pro", DisplayName: "Gemini 1.5 Pro"},
			{ID: "gemini-1.5-flash", DisplayName: "Gemini 1.5 Flash"},
		},
	},
	{
		ID:          "deepseek",
		DisplayName: "DeepSeek",
		Models: []domain.ModelDescriptor{
			{ID: "deepseek-r1", DisplayName: "DeepSeek R1 (Reasoning)"},
			{ID: "deepseek-v3", DisplayName: "DeepSeek V3"},
			{ID: "deepseek-chat", DisplayName: "DeepSeek Chat"},
			{ID: "deepseek-coder", DisplayName: "DeepSeek Coder"},
		},
	},
	{
		ID:          "qwen",
		DisplayName: "Qwen",
		Models: []domain.ModelDescriptor{
			{ID: "qwen3-coder-32b", DisplayName: "Qwen 3 Coder 32B"},
			{ID: "qwen2.5-coder-32b", DisplayName: "Qwen 2.5 Coder 32B"},
			{ID: "qwen-plus", DisplayName: "Qwen Plus"},
			{ID: "qwen-turbo", DisplayName: "Qwen Turbo"},
			{ID: "qwen-max", DisplayName: "Qwen Max"},
		},
	},
	{
		ID:          "openrouter",
		DisplayName: "OpenRouter",
		Models: []domain.ModelDescriptor{
			{ID: "qwen/qwen-3-coder-32b-instruct:free", DisplayName: "Qwen 3 Coder 32B (FREE)"},
			{ID: "moonshot/kimi-k2-large", DisplayName: "Kimi K2 Large (FREE)"},
			{ID: "deepseek/deepseek-r1:free", DisplayName: "DeepSeek R1 (FREE)"},
			{ID: "google/gemini-2.0-flash-exp:free", DisplayName: "Gemini 2.0 Flash (FREE)"},
			{ID: "meta-llama/llama-3.3-70b-instruct:free", DisplayName: "Llama 3.3 70B (FREE)"},
			{ID: "qwen/qwen-2.5-coder-32b-instruct:free", DisplayName: "Qwen 2.5 Coder 32B (FREE)"},
			{ID: "huggingfaceh4/zephyr-7b-beta:free", DisplayName: "Zephyr 7B Beta (FREE)"},
			{ID: "anthropic/claude-3.5-sonnet", DisplayName: "Claude 3.5 Sonnet"},
			{ID: "openai/gpt-4o", DisplayName: "GPT-4o"},
			{ID: "openai/o1-preview", DisplayName: "OpenAI o1 Preview"},
			{ID: "google/gemini-pro-1.5", DisplayName: "Gemini Pro 1.5"},
			{ID: "meta-llama/llama-3.1-405b-instruct", DisplayName: "Llama 3.1 405B"},
		},
	},
}
