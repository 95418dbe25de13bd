/*
Package secbioauth implements privacy-preserving biometric verification over HELR score tables.

A stored template and a fresh probe are compared by summing per-feature score table entries and
checking the sum against a threshold, while the probe, the per-feature contributions and the score
stay encrypted. The heavy lifting of this module is the planning of the encrypted evaluation: large
score tables are normalized, decomposed into small digit lookup tables and mapped onto place-value
slots so that a backend restricted to small-domain table lookups recovers the exact sum.

Sub-packages:

  - decomp: base-b digit decomposition.
  - quantize: feature quantization and probe synthesis.
  - table: feature tables and offset normalization.
  - plan: lookup table and output slot planning.
  - blobstore: local, in-memory, MinIO and S3 storage of the dataset files.
  - dataset: dataset configuration and loading from a blob store.
  - backend: the homomorphic evaluation capability set, with a cleartext
    implementation (backend/plain) and a blind rotation one (backend/fhe).
  - verify: the end-to-end verification driver.

The secbioauth command in cmd/secbioauth runs verification attempts on one or
more datasets and derives quantization bins.
*/
package secbioauth
