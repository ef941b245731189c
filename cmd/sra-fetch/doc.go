/*
sra-fetch downloads public sequencing runs from the Sequence Read Archive
and reorganizes them into compressed FASTQ files, and retrieves GEO series
metadata and supplementary files. All transfer, validation and conversion
work is delegated to the SRA toolkit (prefetch, vdb-validate, fasterq-dump,
sra-stat), Entrez Direct (efetch) and pigz; sra-fetch orchestrates them with
bounded concurrency and per-accession failure isolation.

Sample usage:

Check that the required external tools are installed:

	sra-fetch install

Download one run (or a whole experiment; child runs are resolved first):

	sra-fetch download -o ./fastq_output -t 10 SRR8595490

Download a list of accessions, three at a time, and print a report:

	sra-fetch download-list -jobs 3 accessions.txt

Re-run conversion and compression for an already-downloaded archive:

	sra-fetch convert SRR8595490

Check a run's read layout:

	sra-fetch check-layout SRR8595490

Fetch a GEO series' metadata and supplementary files:

	sra-fetch geo-fetch -filter-pattern H3K GSE188486
*/
package main
