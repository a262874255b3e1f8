package testutil

import "encoding/json"

// Workflow returns a minimal text-to-image graph whose SaveImage node is "9"
func Workflow() map[string]any {
	return map[string]any{
		"3": map[string]any{
			"class_type": "KSampler",
			"inputs": map[string]any{
				"seed": 42, "steps": 20, "cfg": 7.0,
				"sampler_name": "euler", "scheduler": "normal", "denoise": 1.0,
				"model": []any{"4", 0}, "positive": []any{"6", 0},
				"negative": []any{"7", 0}, "latent_image": []any{"5", 0},
			},
		},
		"4": map[string]any{
			"class_type": "CheckpointLoaderSimple",
			"inputs":     map[string]any{"ckpt_name": "model.safetensors"},
		},
		"5": map[string]any{
			"class_type": "EmptyLatentImage",
			"inputs":     map[string]any{"width": 512, "height": 512, "batch_size": 1},
		},
		"6": map[string]any{
			"class_type": "CLIPTextEncode",
			"inputs":     map[string]any{"text": "a lighthouse at dusk", "clip": []any{"4", 1}},
		},
		"7": map[string]any{
			"class_type": "CLIPTextEncode",
			"inputs":     map[string]any{"text": "", "clip": []any{"4", 1}},
		},
		"8": map[string]any{
			"class_type": "VAEDecode",
			"inputs":     map[string]any{"samples": []any{"3", 0}, "vae": []any{"4", 2}},
		},
		"9": map[string]any{
			"class_type": "SaveImage",
			"inputs":     map[string]any{"filename_prefix": "genstream", "images": []any{"8", 0}},
		},
	}
}

// WorkflowJSON returns Workflow encoded as JSON
func WorkflowJSON() json.RawMessage {
	data, err := json.Marshal(Workflow())
	if err != nil {
		panic(err)
	}
	return data
}
