package postgresql

func migrations() map[int]string {
	return map[int]string{
		1: `
			-- Every collection shares one JSONB document table
			CREATE TABLE documents (
				collection VARCHAR(64) NOT NULL,
				id VARCHAR(255) NOT NULL,
				body JSONB NOT NULL,
				created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),
				updated_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),
				PRIMARY KEY (collection, id)
			);

			CREATE INDEX idx_documents_body ON documents USING GIN (body jsonb_path_ops);
			CREATE INDEX idx_documents_created_at ON documents(collection, created_at);
		`,
		2: `
			-- A job has at most one statement of work
			CREATE UNIQUE INDEX idx_documents_sow_job ON documents ((body->>'jobId')) WHERE collection = 'sows';
		`,
	}
}
