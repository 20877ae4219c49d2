// Package config provides an estimator registry and human-readable chain
// configuration.
//
// Register estimator kinds by name (DefaultRegistry has all built-in ones),
// then define chains in YAML (or structs) that reference those kinds with
// their options:
//
//	chains:
//	  classify:
//	    observers: [log]
//	    data: {images: 2, size: 3, seed: 1}
//	    stages:
//	      - name: resize_images
//	        input: SourceImage
//	        output: ResizedImage
//	        width: 2
//	        height: 2
//	      - name: extract_pixels
//	        input: ResizedImage
//	        output: ExtractedPixels
//	        interleave: true
//	        offset: 177
//	      - name: map_value_to_key
//	        input: LabelValue
//	        output: LabelKey
//	      - name: lbfgs_maximum_entropy
//	        label: LabelKey
//	        features: ExtractedPixels
//	      - name: map_key_to_value
//	        input: PredictedLabel
//	        output: PredictedLabelValue
//	      - cache_checkpoint
//
// Build a chain with BuildChain(registry, config), and its observers with
// BuildObserver. Process settings come from IMGPIPE_* environment variables
// (LoadSettings).
package config
