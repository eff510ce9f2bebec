// Package vecquant provides vector quantization for approximate
// similarity search: codebook training, compact encoding, fixed-stride
// code storage and quantized distance scoring.
//
// # Quick Start
//
//	ctx := context.Background()
//
//	idx, _ := vecquant.Scalar(128).Cosine().Build()
//	_ = idx.Train(ctx, trainingVectors)
//	first, _ := idx.Add(ctx, vectors)
//	results, _ := idx.Search(ctx, query, 10)
//	for _, r := range results {
//	    fmt.Println(r.Ordinal, r.Score)
//	}
//
// # Schemes
//
// Three quantization schemes trade accuracy against compression:
//
//	// SCALAR — n-bit per dimension (default 8), ~4x compression.
//	//    Cheapest training, best accuracy.
//	idx, _ := vecquant.Scalar(128).Build()
//
//	// PRODUCT — per-subspace centroid indices, up to ~32x compression.
//	//    K-means training pass per subspace.
//	idx, _ := vecquant.Product(128, 16).Centroids(256).Build()
//
//	// BINARY — one bit per dimension, 32x compression.
//	//    Fastest scoring via Hamming distance, coarsest accuracy.
//	idx, _ := vecquant.Binary(256).FixedThreshold(0).Build()
//
// # Oversampling
//
// Quantized scores are approximate. Callers holding the raw vectors can
// oversample and re-rank exactly:
//
//	results, _ := idx.Search(ctx, query, 10, vecquant.WithOversampling(4))
//	// re-rank the 40 candidates with distance.Exact, keep the best 10
//
// # Persistence
//
// Codebooks serialize into a self-describing artifact envelope with
// optional compression; code storage writes to a fixed-stride file that
// re-opens via mmap for zero-copy serving:
//
//	_ = idx.SaveCodebook(ctx, "vectors.vqcb", artifact.CompressionZSTD)
//	_ = idx.SaveCodes(ctx, "vectors.vqcs")
//
//	cb, _ := artifact.LoadFromFile("vectors.vqcb")
//	codes, _ := storage.Open("vectors.vqcs")
//	s, _ := vecquant.NewSearcher(cb, distance.MetricCosine, codes)
//
// The artifact package also publishes codebooks to blob stores (local
// filesystem, S3, MinIO, in-memory) with an optional DynamoDB commit
// log for atomic version pointers.
//
// # Key Features
//
//   - Scalar, product and binary quantization
//   - Asymmetric scoring without decompression (ADC lookup tables)
//   - Lock-free fixed-stride code storage with atomic reservation
//   - SIMD-style dispatched distance kernels
//   - Resource budgets for memory, workers and IO bandwidth
package vecquant
